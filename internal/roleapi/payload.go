package roleapi

// payload is a request body that already passed manifest validation, so the
// accessors only need to cope with absent optional fields.
type payload map[string]any

func (p payload) str(name string) string {
	s, _ := p[name].(string)
	return s
}

func (p payload) boolean(name string) bool {
	b, _ := p[name].(bool)
	return b
}
