package entry

// ExceptionData is a recursive record describing a captured exception
// tree. Cycles are impossible by construction: instances are always
// built bottom-up from a captured exception, never assembled by hand
// from arbitrary pointers.
type ExceptionData struct {
	Message string
	Type    string
	Stack   string

	Inner        *ExceptionData   // single inner exception, if any
	InnerAggr    []*ExceptionData // aggregated inner exceptions, if any
	LoaderErrors []*ExceptionData // loader-exception list, if any
	FusionLog    string           // assembly-binding fusion log, if any
}
