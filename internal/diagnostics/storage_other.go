//go:build !unix

package diagnostics

// writable has no portable access check here; the read-only mount check
// and the write itself cover these platforms.
func writable(string) error {
	return nil
}
