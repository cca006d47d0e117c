package model

import "strings"

// FileCategory is a coarse grouping used by the file-type breakdown view.
type FileCategory int

const (
	CatOther FileCategory = iota
	CatMedia
	CatCode
	CatArchive
	CatDocument
	CatSystem
)

// CategoryName returns the display name for a category.
func (c FileCategory) CategoryName() string {
	switch c {
	case CatMedia:
		return "Media"
	case CatCode:
		return "Code"
	case CatArchive:
		return "Archives"
	case CatDocument:
		return "Documents"
	case CatSystem:
		return "System"
	default:
		return "Other"
	}
}

// CategoryColor returns the theme hex color for a category.
func (c FileCategory) CategoryColor() string {
	switch c {
	case CatMedia:
		return "#E06C75"
	case CatCode:
		return "#61AFEF"
	case CatArchive:
		return "#E5C07B"
	case CatDocument:
		return "#98C379"
	case CatSystem:
		return "#C678DD"
	default:
		return "#ABB2BF"
	}
}

var categoryByExt = map[string]FileCategory{}

func init() {
	add := func(cat FileCategory, exts ...string) {
		for _, e := range exts {
			categoryByExt[e] = cat
		}
	}
	add(CatMedia,
		".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".heic", ".raw",
		".mp4", ".mkv", ".avi", ".mov", ".webm", ".mpg",
		".mp3", ".flac", ".wav", ".ogg", ".m4a", ".opus")
	add(CatCode,
		".go", ".py", ".js", ".ts", ".rs", ".c", ".cpp", ".h", ".java",
		".rb", ".php", ".sh", ".sql", ".html", ".css",
		".json", ".yaml", ".yml", ".toml", ".xml", ".proto")
	add(CatArchive,
		".zip", ".tar", ".gz", ".bz2", ".xz", ".zst", ".rar", ".7z",
		".iso", ".deb", ".rpm", ".tgz", ".jar")
	add(CatDocument,
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		".odt", ".txt", ".md", ".rst", ".tex", ".csv", ".epub")
	add(CatSystem,
		".log", ".bak", ".tmp", ".swp", ".lock", ".cache",
		".db", ".sqlite", ".so", ".dll", ".dylib", ".o", ".a")
}

// ClassifyName returns the category for a file name.
func ClassifyName(name string) FileCategory {
	if cat, ok := categoryByExt[Extension(name)]; ok {
		return cat
	}
	return CatOther
}

// Extension returns the lowercase extension of name, including the dot,
// or "" if there is none.
func Extension(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		switch name[i] {
		case '.':
			return strings.ToLower(name[i:])
		case '/':
			return ""
		}
	}
	return ""
}
