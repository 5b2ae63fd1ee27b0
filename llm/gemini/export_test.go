package gemini

// Export convert functions for testing
var (
	ConvertTool              = convertTool
	ConvertMessages          = convertMessages
	ConvertParameterToSchema = convertParameterToSchema
)
