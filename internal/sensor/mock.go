package sensor

import "context"

// MockSource is a scriptable Source for tests.
type MockSource struct {
	SourceName string
	Provides   []Quantity
	ReadFunc   func(ctx context.Context) (Readings, error)

	ReadCount int
}

func (m *MockSource) Name() string {
	return m.SourceName
}

func (m *MockSource) Quantities() []Quantity {
	return m.Provides
}

func (m *MockSource) Read(ctx context.Context) (Readings, error) {
	m.ReadCount++
	return m.ReadFunc(ctx)
}

// MockAux is a scriptable AuxReader for tests.
type MockAux struct {
	Value float64
	Err   error
}

func (m *MockAux) Read() (float64, error) {
	return m.Value, m.Err
}
