package answer

import "context"

// FakeGenerator is a canned Generator for tests. Responses are returned in
// order; the last one repeats once exhausted. Calls counts invocations so
// tests can assert idempotent paths never re-invoke the model.
type FakeGenerator struct {
	Responses []string
	Err       error
	Calls     int
	Requests  []Request
}

func (f *FakeGenerator) Complete(_ context.Context, req Request) (string, error) {
	f.Calls++
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	i := f.Calls - 1
	if i >= len(f.Responses) {
		i = len(f.Responses) - 1
	}
	return f.Responses[i], nil
}
