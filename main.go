package main

import (
	_ "github.com/manifest-network/txpipe/internal/alpnfix" // Nodes behind plain gRPC gateways do not negotiate ALPN

	"github.com/manifest-network/txpipe/cmd/txpipe"
)

func main() {
	txpipe.Execute()
}
