package soap

import (
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/kasuganosora/ashenguild/model"
)

const (
	EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	GuildNS    = "http://ashennetwork.soap/guild"
)

// Fault codes (SOAP 1.1).
const (
	FaultClient = "soap:Client"
	FaultServer = "soap:Server"
)

// joinDateLayout is how membership dates appear on the wire.
const joinDateLayout = "2006-01-02"

var (
	errNotEnvelope = errors.New("request is not a SOAP 1.1 envelope")
	errNoBody      = errors.New("SOAP envelope has no Body")
	errEmptyBody   = errors.New("SOAP Body carries no operation")
)

// ---- inbound ----

type guildIDRequest struct {
	GuildID *string `xml:"guild_id"`
}

type createGuildRequest struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Leader      string `xml:"leader"`
}

type joinGuildRequest struct {
	GuildID       *string `xml:"guild_id"`
	CharacterName string  `xml:"character_name"`
}

// readOperation advances d to the first element inside soap:Body and returns
// it. Headers are skipped.
func readOperation(d *xml.Decoder) (xml.StartElement, error) {
	inEnvelope, inBody := false, false
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !inEnvelope {
					return xml.StartElement{}, errNotEnvelope
				}
				if !inBody {
					return xml.StartElement{}, errNoBody
				}
				return xml.StartElement{}, errEmptyBody
			}
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inEnvelope:
				if t.Name.Space != EnvelopeNS || t.Name.Local != "Envelope" {
					return xml.StartElement{}, errNotEnvelope
				}
				inEnvelope = true
			case !inBody:
				if t.Name.Space == EnvelopeNS && t.Name.Local == "Body" {
					inBody = true
					continue
				}
				if err := d.Skip(); err != nil {
					return xml.StartElement{}, err
				}
			default:
				return t, nil
			}
		case xml.EndElement:
			if inBody && t.Name.Space == EnvelopeNS && t.Name.Local == "Body" {
				return xml.StartElement{}, errEmptyBody
			}
		}
	}
}

// parseGuildID reads a required positive integer guild_id.
func parseGuildID(raw *string) (int64, error) {
	if raw == nil {
		return 0, errors.New("guild_id is required")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(*raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("guild_id must be a positive integer")
	}
	return id, nil
}

// ---- outbound ----

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	TnsNS   string   `xml:"xmlns:tns,attr"`
	Body    body     `xml:"soap:Body"`
}

type body struct {
	Content interface{}
}

func newEnvelope(content interface{}) envelope {
	return envelope{SoapNS: EnvelopeNS, TnsNS: GuildNS, Body: body{Content: content}}
}

type guildXML struct {
	ID          int64  `xml:"id"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Leader      string `xml:"leader"`
	MemberCount int    `xml:"member_count"`
}

type memberXML struct {
	ID            int64  `xml:"id"`
	CharacterName string `xml:"character_name"`
	GuildID       int64  `xml:"guild_id"`
	Rank          string `xml:"rank"`
	JoinDate      string `xml:"join_date"`
}

func toGuildXML(g *model.Guild) guildXML {
	return guildXML{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Leader:      g.Leader,
		MemberCount: g.MemberCount,
	}
}

func toMemberXML(m *model.GuildMember) memberXML {
	return memberXML{
		ID:            m.ID,
		CharacterName: m.CharacterName,
		GuildID:       m.GuildID,
		Rank:          m.Rank,
		JoinDate:      m.JoinDate.Format(joinDateLayout),
	}
}

type getAllGuildsResponse struct {
	XMLName xml.Name   `xml:"tns:get_all_guildsResponse"`
	Guilds  []guildXML `xml:"guild"`
}

type getGuildByIDResponse struct {
	XMLName xml.Name `xml:"tns:get_guild_by_idResponse"`
	Guild   guildXML `xml:"guild"`
}

type createGuildResponse struct {
	XMLName xml.Name `xml:"tns:create_guildResponse"`
	Guild   guildXML `xml:"guild"`
}

type joinGuildResponse struct {
	XMLName xml.Name `xml:"tns:join_guildResponse"`
	Message string   `xml:"message"`
}

type getGuildMembersResponse struct {
	XMLName xml.Name    `xml:"tns:get_guild_membersResponse"`
	Members []memberXML `xml:"member"`
}

type fault struct {
	XMLName xml.Name     `xml:"soap:Fault"`
	Code    string       `xml:"faultcode"`
	String  string       `xml:"faultstring"`
	Detail  *faultDetail `xml:"detail,omitempty"`
}

type faultDetail struct {
	ErrorCode string `xml:"tns:error_code"`
}
