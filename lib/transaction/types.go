package transaction

// ElectrumConfig holds the address of the Electrum server used to check
// broadcast transactions.
type ElectrumConfig struct {
	ServerAddr string
	UseSSL     bool
}
