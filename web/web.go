// Package web 内嵌出勤页面的模板与静态资源
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"add1": func(i int) int { return i + 1 },
}

// Templates 解析全部页面模板
// 页面模板为 "attendance.html"，表格片段为 "grid"（操作接口单独渲染）
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// Static 静态资源文件系统，挂载到 /static
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
