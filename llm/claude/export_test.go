package claude

// Export convert functions for testing
var (
	ConvertTool     = convertTool
	ConvertMessages = convertMessages
)
