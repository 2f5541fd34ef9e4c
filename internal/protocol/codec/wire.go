package codec

import (
	"encoding/xml"
	"strings"
	"time"
)

// Wire shapes of the EPP envelope. Public types stay free of xml plumbing;
// these structs carry it.

type envelopeXML struct {
	XMLName  xml.Name     `xml:"urn:ietf:params:xml:ns:epp-1.0 epp"`
	Greeting *Greeting    `xml:"greeting,omitempty"`
	Hello    *Hello       `xml:"hello,omitempty"`
	Command  *commandXML  `xml:"command,omitempty"`
	Response *responseXML `xml:"response,omitempty"`
}

type commandXML struct {
	XMLName xml.Name `xml:"command"`
	// Body is a core payload (*Login, *Logout, *Poll) or a *verbXML.
	Body       any
	Extension  *extensionXML `xml:"extension,omitempty"`
	ClientTRID string        `xml:"clTRID,omitempty"`
}

type verbXML struct {
	XMLName xml.Name
	Op      string `xml:"op,attr,omitempty"`
	Payload Component
}

type extensionXML struct {
	Items []Component
}

type responseXML struct {
	XMLName   xml.Name      `xml:"response"`
	Results   []resultXML   `xml:"result"`
	MsgQ      *msgQXML      `xml:"msgQ,omitempty"`
	ResData   *resDataXML   `xml:"resData,omitempty"`
	Extension *extensionXML `xml:"extension,omitempty"`
	TrID      trIDXML       `xml:"trID"`
}

type resDataXML struct {
	Payload Component
	Raw     []byte `xml:",innerxml"`
}

type textXML struct {
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

type innerXML struct {
	Inner string `xml:",innerxml"`
}

type resultXML struct {
	Code      ResultCode    `xml:"code,attr"`
	Msg       textXML       `xml:"msg"`
	Values    []innerXML    `xml:"value,omitempty"`
	ExtValues []extValueXML `xml:"extValue,omitempty"`
}

type extValueXML struct {
	Value  innerXML `xml:"value"`
	Reason textXML  `xml:"reason"`
}

type msgQXML struct {
	Count int        `xml:"count,attr"`
	ID    string     `xml:"id,attr"`
	QDate *time.Time `xml:"qDate,omitempty"`
	Msg   *textXML   `xml:"msg,omitempty"`
}

type trIDXML struct {
	ClientTRID string `xml:"clTRID,omitempty"`
	ServerTRID string `xml:"svTRID"`
}

func toResultXML(r Result) resultXML {
	msg := r.Msg
	if msg == "" {
		msg = r.Code.Message()
	}
	out := resultXML{Code: r.Code, Msg: textXML{Lang: r.Lang, Text: msg}}
	for _, v := range r.Values {
		out.Values = append(out.Values, innerXML{Inner: v})
	}
	for _, ev := range r.ExtValues {
		out.ExtValues = append(out.ExtValues, extValueXML{
			Value:  innerXML{Inner: ev.Value},
			Reason: textXML{Text: ev.Reason},
		})
	}
	return out
}

func (x resultXML) result() Result {
	out := Result{
		Code: x.Code,
		Msg:  strings.TrimSpace(x.Msg.Text),
		Lang: x.Msg.Lang,
	}
	for _, v := range x.Values {
		out.Values = append(out.Values, strings.TrimSpace(v.Inner))
	}
	for _, ev := range x.ExtValues {
		out.ExtValues = append(out.ExtValues, ExtValue{
			Value:  strings.TrimSpace(ev.Value.Inner),
			Reason: strings.TrimSpace(ev.Reason.Text),
		})
	}
	return out
}

func toMsgQXML(q *MsgQ) *msgQXML {
	if q == nil {
		return nil
	}
	out := &msgQXML{Count: q.Count, ID: q.ID, QDate: q.QDate}
	if q.Msg != "" {
		out.Msg = &textXML{Lang: q.Lang, Text: q.Msg}
	}
	return out
}

func (x *msgQXML) msgQ() *MsgQ {
	out := &MsgQ{Count: x.Count, ID: x.ID, QDate: x.QDate}
	if x.Msg != nil {
		out.Msg = strings.TrimSpace(x.Msg.Text)
		out.Lang = x.Msg.Lang
	}
	return out
}
