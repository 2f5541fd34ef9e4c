package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/danmuck/eppkit/internal/protocol"
)

// ErrUnexpectedMessage reports a well-formed envelope of the wrong kind,
// e.g. a response where a greeting was required.
var ErrUnexpectedMessage = fmt.Errorf("%w: unexpected message", protocol.ErrCodec)

// Message is one inbound server-side document: a hello or a command.
type Message struct {
	Hello   *Hello
	Command *Command
}

// DecodeGreeting decodes a <greeting> document.
func (r *Registry) DecodeGreeting(doc []byte) (*Greeting, error) {
	d, body, err := open(doc)
	if err != nil {
		return nil, err
	}
	if body.Name.Local != "greeting" {
		return nil, fmt.Errorf("%w: want greeting, got %s", ErrUnexpectedMessage, body.Name.Local)
	}
	var g Greeting
	if err := d.DecodeElement(&g, &body); err != nil {
		return nil, fmt.Errorf("%w: greeting: %w", protocol.ErrCodec, err)
	}
	return &g, nil
}

// DecodeResponse decodes a <response> document, dispatching resData and
// extension elements to their registered factories.
func (r *Registry) DecodeResponse(doc []byte) (*Response, error) {
	d, body, err := open(doc)
	if err != nil {
		return nil, err
	}
	if body.Name.Local != "response" {
		return nil, fmt.Errorf("%w: want response, got %s", ErrUnexpectedMessage, body.Name.Local)
	}
	return r.decodeResponse(d)
}

// DecodeCommand decodes a <command> document.
func (r *Registry) DecodeCommand(doc []byte) (*Command, error) {
	d, body, err := open(doc)
	if err != nil {
		return nil, err
	}
	if body.Name.Local != "command" {
		return nil, fmt.Errorf("%w: want command, got %s", ErrUnexpectedMessage, body.Name.Local)
	}
	return r.decodeCommand(d)
}

// DecodeMessage decodes what a server may receive: <hello/> or <command>.
func (r *Registry) DecodeMessage(doc []byte) (Message, error) {
	d, body, err := open(doc)
	if err != nil {
		return Message{}, err
	}
	switch body.Name.Local {
	case "hello":
		if err := d.Skip(); err != nil {
			return Message{}, fmt.Errorf("%w: hello: %w", protocol.ErrCodec, err)
		}
		return Message{Hello: &Hello{}}, nil
	case "command":
		cmd, err := r.decodeCommand(d)
		if err != nil {
			return Message{}, err
		}
		return Message{Command: cmd}, nil
	default:
		return Message{}, fmt.Errorf("%w: want hello or command, got %s", ErrUnexpectedMessage, body.Name.Local)
	}
}

// DecodeResponseAs decodes a response and extracts its resData as T.
func DecodeResponseAs[T Component](r *Registry, doc []byte) (*Response, T, error) {
	resp, err := r.DecodeResponse(doc)
	if err != nil {
		var zero T
		return nil, zero, err
	}
	data, err := DataAs[T](resp)
	return resp, data, err
}

// DataAs returns resp.Data as T or ErrTypeMismatch.
func DataAs[T Component](resp *Response) (T, error) {
	var zero T
	if resp == nil || resp.Data == nil {
		return zero, fmt.Errorf("%w: response has no resData, want %T", ErrTypeMismatch, zero)
	}
	v, ok := resp.Data.(T)
	if !ok {
		return zero, fmt.Errorf("%w: resData is %T, want %T", ErrTypeMismatch, resp.Data, zero)
	}
	return v, nil
}

// ExtensionOf returns the first extension of type T.
func ExtensionOf[T Component](exts []Component) (T, bool) {
	for _, ext := range exts {
		if v, ok := ext.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// PeekClientTRID scans doc for a clTRID element without validating the
// rest, so a server can echo it on a document that failed to decode.
func PeekClientTRID(doc []byte) string {
	d := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "clTRID" || el.Name.Space != NamespaceEPP {
			continue
		}
		var trid string
		if err := d.DecodeElement(&trid, &el); err != nil {
			return ""
		}
		return strings.TrimSpace(trid)
	}
}

func open(doc []byte) (*xml.Decoder, xml.StartElement, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))
	root, ok, err := nextChild(d)
	if err != nil {
		return nil, xml.StartElement{}, err
	}
	if !ok {
		return nil, xml.StartElement{}, fmt.Errorf("%w: empty document", protocol.ErrCodec)
	}
	if root.Name.Space != NamespaceEPP || root.Name.Local != "epp" {
		return nil, xml.StartElement{}, fmt.Errorf("%w: root {%s}%s is not an epp envelope",
			protocol.ErrCodec, root.Name.Space, root.Name.Local)
	}
	body, ok, err := nextChild(d)
	if err != nil {
		return nil, xml.StartElement{}, err
	}
	if !ok {
		return nil, xml.StartElement{}, fmt.Errorf("%w: empty epp envelope", protocol.ErrCodec)
	}
	return d, body, nil
}

// nextChild advances to the next child element of the element being read.
// ok is false once that element's end tag has been consumed.
func nextChild(d *xml.Decoder) (xml.StartElement, bool, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return xml.StartElement{}, false, fmt.Errorf("%w: %w", protocol.ErrCodec, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, true, nil
		case xml.EndElement:
			return xml.StartElement{}, false, nil
		}
	}
}

func (r *Registry) decodeCommand(d *xml.Decoder) (*Command, error) {
	cmd := &Command{}
	for {
		el, ok, err := nextChild(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch {
		case el.Name.Local == "extension":
			exts, err := r.decodeExtensions(d)
			if err != nil {
				return nil, err
			}
			cmd.Extensions = exts
		case el.Name.Local == "clTRID":
			var trid string
			if err := d.DecodeElement(&trid, &el); err != nil {
				return nil, fmt.Errorf("%w: clTRID: %w", protocol.ErrCodec, err)
			}
			cmd.ClientTRID = strings.TrimSpace(trid)
		case cmd.Verb == "":
			if err := r.decodeVerb(d, el, cmd); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedElement, el.Name.Local)
		}
	}
	if cmd.Verb == "" {
		return nil, fmt.Errorf("%w: command without verb", protocol.ErrCodec)
	}
	return cmd, nil
}

func (r *Registry) decodeVerb(d *xml.Decoder, el xml.StartElement, cmd *Command) error {
	verb := Verb(el.Name.Local)
	if !verb.Valid() {
		return fmt.Errorf("%w: verb %s", ErrUnsupportedElement, el.Name.Local)
	}
	cmd.Verb = verb

	var core Component
	switch verb {
	case VerbLogin:
		core = &Login{}
	case VerbLogout:
		core = &Logout{}
	case VerbPoll:
		core = &Poll{}
	}
	if core != nil {
		if err := d.DecodeElement(core, &el); err != nil {
			return fmt.Errorf("%w: %s: %w", protocol.ErrCodec, verb, err)
		}
		cmd.Payload = core
		return nil
	}

	cmd.Op = attr(el, "op")
	payload, ok, err := nextChild(d)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s without object element", protocol.ErrCodec, verb)
	}
	factory, found := r.Mapping(payload.Name.Space)
	if !found {
		return fmt.Errorf("%w: object %q", ErrUnsupportedNamespace, payload.Name.Space)
	}
	comp, err := factory.DecodeCommand(verb, d, payload)
	if err != nil {
		return err
	}
	cmd.Payload = comp

	if _, more, err := nextChild(d); err != nil {
		return err
	} else if more {
		return fmt.Errorf("%w: %s carries more than one object element", protocol.ErrCodec, verb)
	}
	return nil
}

func (r *Registry) decodeResponse(d *xml.Decoder) (*Response, error) {
	resp := &Response{}
	for {
		el, ok, err := nextChild(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch el.Name.Local {
		case "result":
			var x resultXML
			if err := d.DecodeElement(&x, &el); err != nil {
				return nil, fmt.Errorf("%w: result: %w", protocol.ErrCodec, err)
			}
			resp.Results = append(resp.Results, x.result())
		case "msgQ":
			var x msgQXML
			if err := d.DecodeElement(&x, &el); err != nil {
				return nil, fmt.Errorf("%w: msgQ: %w", protocol.ErrCodec, err)
			}
			resp.MsgQ = x.msgQ()
		case "resData":
			data, err := r.decodeResData(d)
			if err != nil {
				return nil, err
			}
			resp.Data = data
		case "extension":
			exts, err := r.decodeExtensions(d)
			if err != nil {
				return nil, err
			}
			resp.Extensions = exts
		case "trID":
			var x trIDXML
			if err := d.DecodeElement(&x, &el); err != nil {
				return nil, fmt.Errorf("%w: trID: %w", protocol.ErrCodec, err)
			}
			resp.TrID = TrID{
				ClientTRID: strings.TrimSpace(x.ClientTRID),
				ServerTRID: strings.TrimSpace(x.ServerTRID),
			}
		default:
			return nil, fmt.Errorf("%w: response element %s", ErrUnsupportedElement, el.Name.Local)
		}
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: response without result", protocol.ErrCodec)
	}
	return resp, nil
}

func (r *Registry) decodeResData(d *xml.Decoder) (Component, error) {
	el, ok, err := nextChild(d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	factory, found := r.Mapping(el.Name.Space)
	if !found {
		return nil, fmt.Errorf("%w: resData %q", ErrUnsupportedNamespace, el.Name.Space)
	}
	comp, err := factory.DecodeResponse(d, el)
	if err != nil {
		return nil, err
	}
	if _, more, err := nextChild(d); err != nil {
		return nil, err
	} else if more {
		return nil, fmt.Errorf("%w: resData carries more than one element", protocol.ErrCodec)
	}
	return comp, nil
}

func (r *Registry) decodeExtensions(d *xml.Decoder) ([]Component, error) {
	var out []Component
	for {
		el, ok, err := nextChild(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		factory, found := r.Extension(el.Name.Space)
		if !found {
			return nil, fmt.Errorf("%w %q", ErrUnsupportedExtension, el.Name.Space)
		}
		comp, err := factory.DecodeExtension(d, el)
		if err != nil {
			return nil, err
		}
		out = append(out, comp)
	}
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
