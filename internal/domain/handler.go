package domain

// HandlerFuncs adapts plain functions to a StreamHandler. Nil fields are ignored.
type HandlerFuncs struct {
	Sources func(results []SearchResult) error
	Token   func(text string) error
}

func (h HandlerFuncs) OnSources(results []SearchResult) error {
	if h.Sources == nil {
		return nil
	}
	return h.Sources(results)
}

func (h HandlerFuncs) OnToken(text string) error {
	if h.Token == nil {
		return nil
	}
	return h.Token(text)
}
