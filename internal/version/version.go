// 包 version：构建信息，发布构建时通过 -ldflags "-X salesmap/internal/version.Commit=..." 注入
package version

var (
	Commit = "dev"
	Date   = ""
)
