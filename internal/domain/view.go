package domain

// Headline is the text next to the Sign up button: the connected address
// once known, the status text otherwise.
func (s State) Headline() string {
	if s.Address != nil {
		return "Connected: " + s.Address.String()
	}
	return s.Status.Text
}

// Problem returns the status text when an error happened after the address
// was learned, so it is not hidden behind the headline.
func (s State) Problem() string {
	if s.Address != nil && s.Status.Kind == StatusError {
		return s.Status.Text
	}
	return ""
}

// BalanceLine renders the balance suffix, empty while no balance is known.
func (s State) BalanceLine() string {
	if s.Balance == nil {
		return ""
	}
	return "· ETH: " + s.Balance.Eth
}
