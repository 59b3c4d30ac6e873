package tools

const (
	ToolNameWebSearch = "web_search"
	ToolNameBrowse    = "browse"
	ToolNameDraw      = "draw"
)
