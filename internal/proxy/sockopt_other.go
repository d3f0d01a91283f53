//go:build !unix

package proxy

func setReuseAddr(fd uintptr) error {
	return nil
}
