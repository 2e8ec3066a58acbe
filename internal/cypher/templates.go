package cypher

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed *.cql
var files embed.FS

var (
	mu     sync.Mutex
	parsed = map[string]*template.Template{}
)

// Render 渲染指定模板，模板只解析一次。
func Render(name string, data any) (string, error) {
	mu.Lock()
	tmpl, ok := parsed[name]
	if !ok {
		var err error
		tmpl, err = template.New(name).ParseFS(files, name)
		if err != nil {
			mu.Unlock()
			return "", fmt.Errorf("parse template %s failed: %w", name, err)
		}
		parsed[name] = tmpl
	}
	mu.Unlock()

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute template %s failed: %w", name, err)
	}
	return sb.String(), nil
}

// MustTemplate 与 Render 相同，失败直接 panic，用于模板名固定的调用点。
func MustTemplate(name string, data any) string {
	query, err := Render(name, data)
	if err != nil {
		panic(err)
	}
	return query
}

// MustAsset 返回模板原文。
func MustAsset(name string) string {
	b, err := files.ReadFile(name)
	if err != nil {
		panic(fmt.Errorf("load %s failed: %w", name, err))
	}
	return string(b)
}

// Statements 按分号拆分脚本，忽略空语句与注释行。
func Statements(name string) []string {
	var out []string
	for _, raw := range strings.Split(MustAsset(name), ";") {
		lines := make([]string, 0)
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "//") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
