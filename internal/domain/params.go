package domain

// WorkflowInputDefinition binds one workflow input parameter to a value source.
type WorkflowInputDefinition struct {
	Name   string
	Type   ParameterType
	Source ParameterSource
}

// WorkflowOutputDefinition declares where one workflow output is written.
type WorkflowOutputDefinition struct {
	Name        string
	Type        ParameterType
	Destination OutputDestination
}

// ParameterSource is a closed set: LiteralSource or RecordLookupSource.
type ParameterSource interface {
	isParameterSource()
}

// LiteralSource binds a fixed value regardless of record contents.
type LiteralSource struct {
	Value any
}

// RecordLookupSource binds the value of one attribute of the fetched record.
type RecordLookupSource struct {
	Attribute string
}

func (LiteralSource) isParameterSource()      {}
func (RecordLookupSource) isParameterSource() {}

// OutputDestination is a closed set: NoDestination or RecordUpdateDestination.
type OutputDestination interface {
	isOutputDestination()
}

// NoDestination discards the output.
type NoDestination struct{}

// RecordUpdateDestination writes the output to an attribute of the originating record.
type RecordUpdateDestination struct {
	Attribute string
}

func (NoDestination) isOutputDestination()           {}
func (RecordUpdateDestination) isOutputDestination() {}

// PrimitiveKind enumerates leaf parameter types.
type PrimitiveKind string

const (
	PrimitiveString  PrimitiveKind = "String"
	PrimitiveInt     PrimitiveKind = "Int"
	PrimitiveFloat   PrimitiveKind = "Float"
	PrimitiveBoolean PrimitiveKind = "Boolean"
	PrimitiveFile    PrimitiveKind = "File"
)

// ParsePrimitiveKind validates a primitive type name.
func ParsePrimitiveKind(value string) (PrimitiveKind, bool) {
	switch PrimitiveKind(value) {
	case PrimitiveString, PrimitiveInt, PrimitiveFloat, PrimitiveBoolean, PrimitiveFile:
		return PrimitiveKind(value), true
	default:
		return "", false
	}
}

// ParameterType is a recursive closed set of parameter types. Every nesting
// terminates in a PrimitiveType.
type ParameterType interface {
	isParameterType()
}

type PrimitiveType struct {
	Kind PrimitiveKind
}

type ArrayType struct {
	Element  ParameterType
	NonEmpty bool
}

type MapType struct {
	Key   PrimitiveKind
	Value ParameterType
}

type OptionalType struct {
	Inner ParameterType
}

type StructType struct {
	Name   string
	Fields []StructField
}

type StructField struct {
	Name string
	Type ParameterType
}

func (PrimitiveType) isParameterType() {}
func (ArrayType) isParameterType()     {}
func (MapType) isParameterType()       {}
func (OptionalType) isParameterType()  {}
func (StructType) isParameterType()    {}
