package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/manifest-network/txpipe/internal/client"
)

const retryBackoff = 500 * time.Millisecond

// ParseMethodFullName splits "pkg.Service.Method" into "pkg.Service" and "Method".
func ParseMethodFullName(methodFullName string) (string, string, error) {
	if methodFullName == "" {
		return "", "", errors.New("method full name is empty")
	}
	dot := strings.LastIndex(methodFullName, ".")
	if dot == -1 {
		return "", "", fmt.Errorf("invalid method full name %q: no dot found", methodFullName)
	}
	service, method := methodFullName[:dot], methodFullName[dot+1:]
	if service == "" || method == "" {
		return "", "", fmt.Errorf("invalid method full name format: %q", methodFullName)
	}
	return service, method, nil
}

// InvokeGRPC calls methodFullName with the request given as proto3 JSON and
// returns the dynamic response. Transient failures are retried up to
// maxRetries attempts in total.
func InvokeGRPC(gRPCClient *client.GRPCClient, methodFullName string, maxRetries uint, jsonParams []byte) (protoreflect.Message, error) {
	service, method, err := ParseMethodFullName(methodFullName)
	if err != nil {
		return nil, err
	}

	md, err := gRPCClient.Resolver.FindMethod(gRPCClient.Ctx, service, method)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", methodFullName, err)
	}

	in := dynamicpb.NewMessage(md.Input())
	if len(jsonParams) > 0 {
		unmarshal := protojson.UnmarshalOptions{Resolver: gRPCClient.Resolver.Types()}
		if err := unmarshal.Unmarshal(jsonParams, in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request for %s: %w", methodFullName, err)
		}
	}

	if maxRetries == 0 {
		maxRetries = 1
	}
	fullMethod := "/" + service + "/" + method

	var lastErr error
	for attempt := uint(1); attempt <= maxRetries; attempt++ {
		out := dynamicpb.NewMessage(md.Output())
		lastErr = gRPCClient.Conn.Invoke(gRPCClient.Ctx, fullMethod, in, out)
		if lastErr == nil {
			return out, nil
		}
		if !isRetryable(lastErr) || attempt == maxRetries {
			break
		}

		slog.Debug("Retrying gRPC call", "method", methodFullName, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-gRPCClient.Ctx.Done():
			return nil, gRPCClient.Ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to call %s: %w", methodFullName, lastErr)
}

// GetGRPCResponse calls methodFullName and returns the response as JSON with
// proto field names.
func GetGRPCResponse(gRPCClient *client.GRPCClient, methodFullName string, maxRetries uint, jsonParams []byte) ([]byte, error) {
	msg, err := InvokeGRPC(gRPCClient, methodFullName, maxRetries, jsonParams)
	if err != nil {
		return nil, err
	}
	return marshal(gRPCClient, msg)
}

// MarshalField marshals the message at fieldPath inside msg, leaving out the
// named fields of that message. Fields holding Any values of unknown types
// have to be left out or marshaling fails.
func MarshalField(gRPCClient *client.GRPCClient, msg protoreflect.Message, fieldPath string, omit ...string) ([]byte, error) {
	val, err := getNestedField(msg, fieldPath)
	if err != nil {
		return nil, err
	}
	sub, ok := val.Interface().(protoreflect.Message)
	if !ok {
		return nil, fmt.Errorf("field '%s' is not a message", fieldPath)
	}
	if !sub.IsValid() {
		return nil, fmt.Errorf("field '%s' is not set", fieldPath)
	}
	for _, name := range omit {
		if fd := sub.Descriptor().Fields().ByName(protoreflect.Name(name)); fd != nil {
			sub.Clear(fd)
		}
	}
	return marshal(gRPCClient, sub)
}

// ExtractGRPCField calls methodFullName without parameters and parses the
// scalar at fieldPath in the response.
func ExtractGRPCField[T any](gRPCClient *client.GRPCClient, methodFullName string, maxRetries uint, fieldPath string, parse func(string) (T, error)) (T, error) {
	var zero T

	msg, err := InvokeGRPC(gRPCClient, methodFullName, maxRetries, nil)
	if err != nil {
		return zero, err
	}
	val, err := getNestedField(msg, fieldPath)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s from %s: %w", fieldPath, methodFullName, err)
	}
	return parse(val.String())
}

func marshal(gRPCClient *client.GRPCClient, msg protoreflect.Message) ([]byte, error) {
	opts := protojson.MarshalOptions{UseProtoNames: true, Resolver: gRPCClient.Resolver.Types()}
	b, err := opts.Marshal(msg.Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Descriptor().FullName(), err)
	}
	return b, nil
}

// getNestedField walks a dot separated path of singular message fields.
func getNestedField(msg protoreflect.Message, fieldPath string) (protoreflect.Value, error) {
	parts := strings.Split(fieldPath, ".")
	current := msg
	for i, part := range parts {
		fd := current.Descriptor().Fields().ByName(protoreflect.Name(part))
		if fd == nil {
			return protoreflect.Value{}, fmt.Errorf("field '%s' not found in %s", part, current.Descriptor().FullName())
		}
		val := current.Get(fd)
		if i == len(parts)-1 {
			return val, nil
		}
		if fd.Kind() != protoreflect.MessageKind || fd.IsList() || fd.IsMap() {
			return protoreflect.Value{}, fmt.Errorf("field '%s' is not a message", part)
		}
		current = val.Message()
	}
	return protoreflect.Value{}, fmt.Errorf("empty field path")
}

func isRetryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Unknown:
		return true
	}
	return false
}
