package cli

var (
	ParseGCSPath        = parseGCSPath
	WriteExport         = writeExport
	LoadCaseFile        = loadCaseFile
	LoadRuleFile        = loadRuleFile
	GetIndexConfig      = getIndexConfig
	MarshalMemoryExport = marshalMemoryExport
	PrintContext        = printContext
	PrintContextJSON    = printContextJSON
)
