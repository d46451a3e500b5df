package stages

// SetStatfsForTests overrides the filesystem stat call during tests.
func SetStatfsForTests(fn func(path string) (total uint64, free uint64, err error)) func() {
	previous := statfs
	statfs = fn
	return func() {
		statfs = previous
	}
}
