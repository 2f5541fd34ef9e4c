package codec

import (
	"encoding/xml"
	"fmt"

	"github.com/danmuck/eppkit/internal/protocol"
)

func EncodeGreeting(g *Greeting) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil greeting", protocol.ErrCodec)
	}
	return marshalEnvelope(&envelopeXML{Greeting: g})
}

func EncodeHello() ([]byte, error) {
	return marshalEnvelope(&envelopeXML{Hello: &Hello{}})
}

// EncodeCommand renders cmd. The object payload and every extension must
// belong to a registered namespace.
func (r *Registry) EncodeCommand(cmd *Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", protocol.ErrCodec)
	}
	if !cmd.Verb.Valid() {
		return nil, fmt.Errorf("%w: verb %q", ErrUnsupportedElement, cmd.Verb)
	}
	out := &commandXML{ClientTRID: cmd.ClientTRID}

	if cmd.Verb.Core() {
		body, err := corePayload(cmd)
		if err != nil {
			return nil, err
		}
		out.Body = body
	} else {
		if cmd.Payload == nil {
			return nil, fmt.Errorf("%w: %s without object payload", protocol.ErrCodec, cmd.Verb)
		}
		if _, ok := r.Mapping(cmd.Payload.Namespace()); !ok {
			return nil, fmt.Errorf("%w: object %q", ErrUnsupportedNamespace, cmd.Payload.Namespace())
		}
		if cmd.Verb == VerbTransfer && cmd.Op == "" {
			return nil, fmt.Errorf("%w: transfer without op", protocol.ErrCodec)
		}
		op := ""
		if cmd.Verb == VerbTransfer {
			op = cmd.Op
		}
		out.Body = &verbXML{
			XMLName: xml.Name{Local: string(cmd.Verb)},
			Op:      op,
			Payload: cmd.Payload,
		}
	}

	ext, err := r.extensionBlock(cmd.Extensions)
	if err != nil {
		return nil, err
	}
	out.Extension = ext
	return marshalEnvelope(&envelopeXML{Command: out})
}

// EncodeResponse renders resp. Raw data is replayed verbatim.
func (r *Registry) EncodeResponse(resp *Response) ([]byte, error) {
	if resp == nil || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: response without result", protocol.ErrCodec)
	}
	out := &responseXML{
		MsgQ: toMsgQXML(resp.MsgQ),
		TrID: trIDXML{ClientTRID: resp.TrID.ClientTRID, ServerTRID: resp.TrID.ServerTRID},
	}
	for _, res := range resp.Results {
		out.Results = append(out.Results, toResultXML(res))
	}

	switch data := resp.Data.(type) {
	case nil:
	case Raw:
		out.ResData = &resDataXML{Raw: data.Data}
	case *Raw:
		out.ResData = &resDataXML{Raw: data.Data}
	default:
		if _, ok := r.Mapping(data.Namespace()); !ok {
			return nil, fmt.Errorf("%w: resData %q", ErrUnsupportedNamespace, data.Namespace())
		}
		out.ResData = &resDataXML{Payload: data}
	}

	ext, err := r.extensionBlock(resp.Extensions)
	if err != nil {
		return nil, err
	}
	out.Extension = ext
	return marshalEnvelope(&envelopeXML{Response: out})
}

// EncodeComponent renders a single registered component without the
// envelope, e.g. to store a poll payload.
func (r *Registry) EncodeComponent(c Component) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil component", protocol.ErrCodec)
	}
	_, isMapping := r.Mapping(c.Namespace())
	_, isExt := r.Extension(c.Namespace())
	if !isMapping && !isExt {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNamespace, c.Namespace())
	}
	b, err := xml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %T: %w", protocol.ErrCodec, c, err)
	}
	return b, nil
}

func corePayload(cmd *Command) (Component, error) {
	switch cmd.Verb {
	case VerbLogin:
		if l, ok := cmd.Payload.(*Login); ok && l != nil {
			return l, nil
		}
	case VerbLogout:
		if cmd.Payload == nil {
			return &Logout{}, nil
		}
		if l, ok := cmd.Payload.(*Logout); ok && l != nil {
			return l, nil
		}
	case VerbPoll:
		if p, ok := cmd.Payload.(*Poll); ok && p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s payload is %T", ErrTypeMismatch, cmd.Verb, cmd.Payload)
}

func (r *Registry) extensionBlock(exts []Component) (*extensionXML, error) {
	if len(exts) == 0 {
		return nil, nil
	}
	block := &extensionXML{Items: make([]Component, 0, len(exts))}
	for _, ext := range exts {
		if ext == nil {
			return nil, fmt.Errorf("%w: nil extension", protocol.ErrCodec)
		}
		if _, ok := r.Extension(ext.Namespace()); !ok {
			return nil, fmt.Errorf("%w %q", ErrUnsupportedExtension, ext.Namespace())
		}
		block.Items = append(block.Items, ext)
	}
	return block, nil
}

func marshalEnvelope(env *envelopeXML) ([]byte, error) {
	b, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %w", protocol.ErrCodec, err)
	}
	out := make([]byte, 0, len(xml.Header)+len(b))
	out = append(out, xml.Header...)
	return append(out, b...), nil
}
