// Package reflection resolves service and message descriptors from a node
// through the gRPC server reflection protocol, so that any Cosmos query or
// service can be invoked without compiled protobuf stubs.
package reflection

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// CustomResolver lazily fetches file descriptors from the server and keeps
// them in a private registry. It is safe for concurrent use.
type CustomResolver struct {
	client rpb.ServerReflectionClient

	mu      sync.Mutex
	files   *protoregistry.Files
	types   *dynamicpb.Types
	fetched map[string]*descriptorpb.FileDescriptorProto
}

func NewCustomResolver(conn grpc.ClientConnInterface) *CustomResolver {
	files := new(protoregistry.Files)
	return &CustomResolver{
		client:  rpb.NewServerReflectionClient(conn),
		files:   files,
		types:   dynamicpb.NewTypes(files),
		fetched: make(map[string]*descriptorpb.FileDescriptorProto),
	}
}

// Types resolves message types, including those packed in Any, from every
// file fetched so far.
func (r *CustomResolver) Types() *dynamicpb.Types { return r.types }

// FindMethod returns the descriptor of service/method, fetching the
// service's file and its dependencies on first use.
func (r *CustomResolver) FindMethod(ctx context.Context, serviceName, methodName string) (protoreflect.MethodDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := protoreflect.FullName(serviceName)
	desc, err := r.files.FindDescriptorByName(name)
	if err != nil {
		if err := r.loadSymbol(ctx, serviceName); err != nil {
			return nil, err
		}
		desc, err = r.files.FindDescriptorByName(name)
		if err != nil {
			return nil, fmt.Errorf("service %s not found: %w", serviceName, err)
		}
	}

	sd, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a service", serviceName)
	}
	md := sd.Methods().ByName(protoreflect.Name(methodName))
	if md == nil {
		return nil, fmt.Errorf("method %s not found in service %s", methodName, serviceName)
	}
	return md, nil
}

func (r *CustomResolver) loadSymbol(ctx context.Context, symbol string) error {
	protos, err := r.request(ctx, &rpb.ServerReflectionRequest{
		MessageRequest: &rpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve symbol %s: %w", symbol, err)
	}
	for _, fdp := range protos {
		if err := r.register(ctx, fdp.GetName()); err != nil {
			return err
		}
	}
	return nil
}

func (r *CustomResolver) register(ctx context.Context, path string) error {
	if _, err := r.files.FindFileByPath(path); err == nil {
		return nil
	}

	fdp, ok := r.fetched[path]
	if !ok {
		if fd, err := protoregistry.GlobalFiles.FindFileByPath(path); err == nil {
			return r.files.RegisterFile(fd)
		}
		if _, err := r.request(ctx, &rpb.ServerReflectionRequest{
			MessageRequest: &rpb.ServerReflectionRequest_FileByFilename{FileByFilename: path},
		}); err != nil {
			return fmt.Errorf("failed to fetch file %s: %w", path, err)
		}
		if fdp, ok = r.fetched[path]; !ok {
			return fmt.Errorf("server did not return file %s", path)
		}
	}

	for _, dep := range fdp.GetDependency() {
		if err := r.register(ctx, dep); err != nil {
			return err
		}
	}

	fd, err := protodesc.FileOptions{AllowUnresolvable: true}.New(fdp, r.files)
	if err != nil {
		return fmt.Errorf("failed to build descriptor for %s: %w", path, err)
	}
	if err := r.files.RegisterFile(fd); err != nil {
		return fmt.Errorf("failed to register %s: %w", path, err)
	}
	return nil
}

// request sends a single reflection request and records every file
// descriptor in the answer.
func (r *CustomResolver) request(ctx context.Context, req *rpb.ServerReflectionRequest) ([]*descriptorpb.FileDescriptorProto, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := r.client.ServerReflectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.Send(req); err != nil {
		return nil, err
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	_ = stream.CloseSend()

	if errResp := resp.GetErrorResponse(); errResp != nil {
		return nil, fmt.Errorf("reflection error %d: %s", errResp.GetErrorCode(), errResp.GetErrorMessage())
	}

	raw := resp.GetFileDescriptorResponse().GetFileDescriptorProto()
	protos := make([]*descriptorpb.FileDescriptorProto, 0, len(raw))
	for _, b := range raw {
		fdp := new(descriptorpb.FileDescriptorProto)
		if err := proto.Unmarshal(b, fdp); err != nil {
			return nil, fmt.Errorf("failed to decode file descriptor: %w", err)
		}
		r.fetched[fdp.GetName()] = fdp
		protos = append(protos, fdp)
	}
	return protos, nil
}
