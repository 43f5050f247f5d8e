// Package alpnfix turns off grpc-go's ALPN enforcement. Most public Cosmos
// gRPC endpoints sit behind proxies that do not advertise h2 via ALPN.
// Import it with a blank identifier before anything that dials gRPC:
//
//	_ "github.com/manifest-network/txpipe/internal/alpnfix"
package alpnfix

import "os"

func init() {
	if _, ok := os.LookupEnv("GRPC_ENFORCE_ALPN_ENABLED"); !ok {
		os.Setenv("GRPC_ENFORCE_ALPN_ENABLED", "false")
	}
}
