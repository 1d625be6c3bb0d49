package ledger

// Guard rejects nested entry into a component while one of its operations
// is calling out to an external primitive.
type Guard struct {
	entered bool
}

// Enter marks the component busy. The returned func releases it.
func (g *Guard) Enter(component string) (func(), error) {
	if g.entered {
		return nil, ErrReentrantCall.In(component)
	}
	g.entered = true
	return func() { g.entered = false }, nil
}
