// Package grpchealth serves grpc.health.v1 for orchestrators that probe over
// gRPC. The overall service ("") is SERVING while the process runs; each
// tracked circuit breaker is reported as its own service.
//
//	grpc-health-probe -addr=:50051 -service=datastore
package grpchealth
