package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error values so they can be returned and compared before a heap
// exists; errors.New and fmt.Errorf are never used below the allocator.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the same kernel error. Kernel errors are
// singletons so pointer identity is sufficient.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other == e
}
