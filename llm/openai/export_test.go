package openai

// Export convert functions for testing
var (
	ConvertTool      = convertTool
	ConvertMessages  = convertMessages
	ConvertToolCall  = convertToolCall
	MarshalArguments = marshalArguments
)
