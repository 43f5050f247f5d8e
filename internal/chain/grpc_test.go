package chain

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/manifest-network/txpipe/internal/client"
	"github.com/manifest-network/txpipe/internal/models"
)

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Type:   typ.Enum(),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

// txServiceFile describes the subset of cosmos.tx.v1beta1.Service the chain
// client calls.
func txServiceFile(t *testing.T) (*protoregistry.Files, protoreflect.ServiceDescriptor) {
	t.Helper()

	const (
		msgType  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
		str      = descriptorpb.FieldDescriptorProto_TYPE_STRING
		i64      = descriptorpb.FieldDescriptorProto_TYPE_INT64
		u32      = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		rawBytes = descriptorpb.FieldDescriptorProto_TYPE_BYTES
		enum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	)

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String("cosmos/tx/v1beta1/service.proto"),
		Package:    proto.String("cosmos.tx.v1beta1"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/any.proto"},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("BroadcastMode"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("BROADCAST_MODE_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("BROADCAST_MODE_SYNC"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("TxResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("height", 1, i64, ""),
					field("txhash", 2, str, ""),
					field("code", 4, u32, ""),
					field("raw_log", 6, str, ""),
					field("gas_wanted", 9, i64, ""),
					field("gas_used", 10, i64, ""),
					field("tx", 11, msgType, ".google.protobuf.Any"),
				},
			},
			{
				Name:  proto.String("GetTxRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{field("hash", 1, str, "")},
			},
			{
				Name:  proto.String("GetTxResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{field("tx_response", 2, msgType, ".cosmos.tx.v1beta1.TxResponse")},
			},
			{
				Name: proto.String("BroadcastTxRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("tx_bytes", 1, rawBytes, ""),
					field("mode", 2, enum, ".cosmos.tx.v1beta1.BroadcastMode"),
				},
			},
			{
				Name:  proto.String("BroadcastTxResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{field("tx_response", 1, msgType, ".cosmos.tx.v1beta1.TxResponse")},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Service"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{Name: proto.String("GetTx"), InputType: proto.String(".cosmos.tx.v1beta1.GetTxRequest"), OutputType: proto.String(".cosmos.tx.v1beta1.GetTxResponse")},
				{Name: proto.String("BroadcastTx"), InputType: proto.String(".cosmos.tx.v1beta1.BroadcastTxRequest"), OutputType: proto.String(".cosmos.tx.v1beta1.BroadcastTxResponse")},
			},
		}},
	}

	files := new(protoregistry.Files)
	require.NoError(t, files.RegisterFile(anypb.File_google_protobuf_any_proto))
	fd, err := protodesc.NewFile(fdp, files)
	require.NoError(t, err)
	require.NoError(t, files.RegisterFile(fd))
	return files, fd.Services().ByName("Service")
}

// fakeTxService answers GetTx from a fixed set of transactions and
// BroadcastTx with broadcastCode, failing the first failBroadcasts calls.
type fakeTxService struct {
	sd             protoreflect.ServiceDescriptor
	broadcasts     atomic.Int32
	failBroadcasts int32
	broadcastCode  uint32
	txBytes        atomic.Value
}

func (f *fakeTxService) txResponse(hash string, height int64, code uint32, rawLog string) *dynamicpb.Message {
	md := f.sd.ParentFile().Messages().ByName("TxResponse")
	resp := dynamicpb.NewMessage(md)
	fields := md.Fields()
	resp.Set(fields.ByName("txhash"), protoreflect.ValueOfString(hash))
	resp.Set(fields.ByName("code"), protoreflect.ValueOfUint32(code))
	resp.Set(fields.ByName("raw_log"), protoreflect.ValueOfString(rawLog))
	if height > 0 {
		resp.Set(fields.ByName("height"), protoreflect.ValueOfInt64(height))
		resp.Set(fields.ByName("gas_wanted"), protoreflect.ValueOfInt64(200000))
		resp.Set(fields.ByName("gas_used"), protoreflect.ValueOfInt64(150000))
		// The chain's own Tx type is unknown to the client.
		tx := &anypb.Any{TypeUrl: "/cosmos.tx.v1beta1.Tx", Value: []byte{0x0a, 0x00}}
		resp.Set(fields.ByName("tx"), protoreflect.ValueOfMessage(tx.ProtoReflect()))
	}
	return resp
}

func (f *fakeTxService) getTx(in *dynamicpb.Message) (proto.Message, error) {
	hash := in.Get(in.Descriptor().Fields().ByName("hash")).String()

	var txResp *dynamicpb.Message
	switch hash {
	case "ABC123":
		txResp = f.txResponse(hash, 42, 0, "[]")
	case "FAILED":
		txResp = f.txResponse(hash, 43, 11, "out of gas")
	default:
		return nil, status.Errorf(codes.NotFound, "tx not found: %s", hash)
	}

	out := dynamicpb.NewMessage(f.sd.Methods().ByName("GetTx").Output())
	out.Set(out.Descriptor().Fields().ByName("tx_response"), protoreflect.ValueOfMessage(txResp))
	return out, nil
}

func (f *fakeTxService) broadcastTx(in *dynamicpb.Message) (proto.Message, error) {
	f.txBytes.Store(in.Get(in.Descriptor().Fields().ByName("tx_bytes")).Bytes())
	if f.broadcasts.Add(1) <= f.failBroadcasts {
		return nil, status.Error(codes.Unavailable, "connection reset")
	}

	out := dynamicpb.NewMessage(f.sd.Methods().ByName("BroadcastTx").Output())
	out.Set(out.Descriptor().Fields().ByName("tx_response"), protoreflect.ValueOfMessage(f.txResponse("ABC123", 0, f.broadcastCode, "")))
	return out, nil
}

func (f *fakeTxService) handler(method string, call func(*dynamicpb.Message) (proto.Message, error)) grpc.MethodDesc {
	input := f.sd.Methods().ByName(protoreflect.Name(method)).Input()
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := dynamicpb.NewMessage(input)
			if err := dec(in); err != nil {
				return nil, err
			}
			return call(in)
		},
	}
}

func newTestGRPCChain(t *testing.T, svc *fakeTxService, signer Signer) *GRPCChain {
	t.Helper()

	files, sd := txServiceFile(t)
	svc.sd = sd

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: string(sd.FullName()),
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			svc.handler("GetTx", svc.getTx),
			svc.handler("BroadcastTx", svc.broadcastTx),
		},
	}, svc)
	rpb.RegisterServerReflectionServer(srv, reflection.NewServer(reflection.ServerOptions{
		Services:           srv,
		DescriptorResolver: files,
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewGRPCChain(client.FromConn(context.Background(), conn), signer, 3)
}

func TestGRPCChainPollTxInfo(t *testing.T) {
	chain := newTestGRPCChain(t, &fakeTxService{}, nil)
	ctx := context.Background()

	info, err := chain.PollTxInfo(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, &models.TxInfo{
		TxHash:    "ABC123",
		Height:    42,
		RawLog:    "[]",
		GasWanted: 200000,
		GasUsed:   150000,
	}, info)

	failed, err := chain.PollTxInfo(ctx, "FAILED")
	require.NoError(t, err)
	assert.EqualValues(t, 11, failed.Code)
	assert.Equal(t, "out of gas", failed.RawLog)

	missing, err := chain.PollTxInfo(ctx, "UNKNOWN")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGRPCChainPost(t *testing.T) {
	svc := &fakeTxService{}
	chain := newTestGRPCChain(t, svc, staticSigner{tx: []byte("signed")})

	result, err := chain.Post(context.Background(), &models.TxOptions{})
	require.NoError(t, err)
	assert.Equal(t, &models.TxResult{TxHash: "ABC123"}, result)
	assert.Equal(t, []byte("signed"), svc.txBytes.Load())

	rejected := &fakeTxService{broadcastCode: 5}
	result, err = newTestGRPCChain(t, rejected, staticSigner{tx: []byte("signed")}).Post(context.Background(), &models.TxOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, result.Code)
}

func TestGRPCChainPostErrors(t *testing.T) {
	unavailable := &fakeTxService{failBroadcasts: 1}
	_, err := newTestGRPCChain(t, unavailable, staticSigner{tx: []byte("signed")}).Post(context.Background(), &models.TxOptions{})
	assert.ErrorContains(t, err, "failed to broadcast transaction")
	assert.EqualValues(t, 1, unavailable.broadcasts.Load())

	denied := &fakeTxService{}
	_, err = newTestGRPCChain(t, denied, staticSigner{err: ErrUserDenied}).Post(context.Background(), &models.TxOptions{})
	assert.ErrorIs(t, err, ErrUserDenied)
	assert.Zero(t, denied.broadcasts.Load())

	_, err = newTestGRPCChain(t, &fakeTxService{}, nil).Post(context.Background(), &models.TxOptions{})
	assert.ErrorContains(t, err, "no signer configured")
}
