package mcp

// Export convert functions for testing
var (
	ConvertToolSpec     = convertToolSpec
	PropertyToParameter = propertyToParameter
	ContentToMap        = contentToMap
)
