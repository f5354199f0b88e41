package xerror

// Unwrap returns t, panicking if e is not nil.
//
// Meant for values known to be valid, such as literals in tests.
func Unwrap[T any](t T, e error) T {
	if e != nil {
		panic(e)
	}
	return t
}
