package testhelpers

// LookupEnv returns an os.LookupEnv replacement that only sees env.
func LookupEnv(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
