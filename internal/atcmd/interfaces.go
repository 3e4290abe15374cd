package atcmd

type Transport interface {
	WriteLine(s string) error
	Receive() (string, error)
}
