package cmd

// Middleware decorates a command: guild checks, permission checks, logging.
type Middleware func(Command) Command

// Apply wraps c with mws; the first middleware ends up outermost.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
