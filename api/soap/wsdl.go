package soap

import (
	"bytes"
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WSDLQuery handles GET /soap?wsdl. Other GETs on /soap get a 405 with a hint.
func (h *Handler) WSDLQuery(c *gin.Context) {
	if _, ok := c.GetQuery("wsdl"); !ok {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "POST a SOAP envelope, or GET /soap?wsdl for the service description"})
		return
	}
	h.WSDL(c)
}

// WSDL handles GET /soap/wsdl.
func (h *Handler) WSDL(c *gin.Context) {
	var loc bytes.Buffer
	_ = xml.EscapeText(&loc, []byte(h.location))
	doc := bytes.Replace([]byte(wsdlDocument), []byte("{{LOCATION}}"), loc.Bytes(), 1)
	c.Data(http.StatusOK, "text/xml; charset=utf-8", doc)
}

const wsdlDocument = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="http://schemas.xmlsoap.org/wsdl/"
             xmlns:tns="http://ashennetwork.soap/guild"
             xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
             xmlns:xsd="http://www.w3.org/2001/XMLSchema"
             name="GuildService"
             targetNamespace="http://ashennetwork.soap/guild">
  <types>
    <xsd:schema targetNamespace="http://ashennetwork.soap/guild" elementFormDefault="unqualified">
      <xsd:complexType name="Guild">
        <xsd:sequence>
          <xsd:element name="id" type="xsd:long"/>
          <xsd:element name="name" type="xsd:string"/>
          <xsd:element name="description" type="xsd:string"/>
          <xsd:element name="leader" type="xsd:string"/>
          <xsd:element name="member_count" type="xsd:int"/>
        </xsd:sequence>
      </xsd:complexType>
      <xsd:complexType name="Member">
        <xsd:sequence>
          <xsd:element name="id" type="xsd:long"/>
          <xsd:element name="character_name" type="xsd:string"/>
          <xsd:element name="guild_id" type="xsd:long"/>
          <xsd:element name="rank" type="xsd:string"/>
          <xsd:element name="join_date" type="xsd:date"/>
        </xsd:sequence>
      </xsd:complexType>
      <xsd:complexType name="FaultDetail">
        <xsd:sequence>
          <xsd:element name="error_code" type="xsd:string"/>
        </xsd:sequence>
      </xsd:complexType>

      <xsd:element name="get_all_guilds">
        <xsd:complexType/>
      </xsd:element>
      <xsd:element name="get_all_guildsResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild" type="tns:Guild" minOccurs="0" maxOccurs="unbounded"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>

      <xsd:element name="get_guild_by_id">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild_id" type="xsd:long"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="get_guild_by_idResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild" type="tns:Guild"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>

      <xsd:element name="create_guild">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="name" type="xsd:string"/>
            <xsd:element name="description" type="xsd:string" minOccurs="0"/>
            <xsd:element name="leader" type="xsd:string"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="create_guildResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild" type="tns:Guild"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>

      <xsd:element name="join_guild">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild_id" type="xsd:long"/>
            <xsd:element name="character_name" type="xsd:string"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="join_guildResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="message" type="xsd:string"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>

      <xsd:element name="get_guild_members">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="guild_id" type="xsd:long"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
      <xsd:element name="get_guild_membersResponse">
        <xsd:complexType>
          <xsd:sequence>
            <xsd:element name="member" type="tns:Member" minOccurs="0" maxOccurs="unbounded"/>
          </xsd:sequence>
        </xsd:complexType>
      </xsd:element>
    </xsd:schema>
  </types>

  <message name="get_all_guildsRequest"><part name="parameters" element="tns:get_all_guilds"/></message>
  <message name="get_all_guildsResponse"><part name="parameters" element="tns:get_all_guildsResponse"/></message>
  <message name="get_guild_by_idRequest"><part name="parameters" element="tns:get_guild_by_id"/></message>
  <message name="get_guild_by_idResponse"><part name="parameters" element="tns:get_guild_by_idResponse"/></message>
  <message name="create_guildRequest"><part name="parameters" element="tns:create_guild"/></message>
  <message name="create_guildResponse"><part name="parameters" element="tns:create_guildResponse"/></message>
  <message name="join_guildRequest"><part name="parameters" element="tns:join_guild"/></message>
  <message name="join_guildResponse"><part name="parameters" element="tns:join_guildResponse"/></message>
  <message name="get_guild_membersRequest"><part name="parameters" element="tns:get_guild_members"/></message>
  <message name="get_guild_membersResponse"><part name="parameters" element="tns:get_guild_membersResponse"/></message>

  <portType name="GuildServicePortType">
    <operation name="get_all_guilds">
      <input message="tns:get_all_guildsRequest"/>
      <output message="tns:get_all_guildsResponse"/>
    </operation>
    <operation name="get_guild_by_id">
      <input message="tns:get_guild_by_idRequest"/>
      <output message="tns:get_guild_by_idResponse"/>
    </operation>
    <operation name="create_guild">
      <input message="tns:create_guildRequest"/>
      <output message="tns:create_guildResponse"/>
    </operation>
    <operation name="join_guild">
      <input message="tns:join_guildRequest"/>
      <output message="tns:join_guildResponse"/>
    </operation>
    <operation name="get_guild_members">
      <input message="tns:get_guild_membersRequest"/>
      <output message="tns:get_guild_membersResponse"/>
    </operation>
  </portType>

  <binding name="GuildServiceSoapBinding" type="tns:GuildServicePortType">
    <soap:binding style="document" transport="http://schemas.xmlsoap.org/soap/http"/>
    <operation name="get_all_guilds">
      <soap:operation soapAction="http://ashennetwork.soap/guild/get_all_guilds"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
    <operation name="get_guild_by_id">
      <soap:operation soapAction="http://ashennetwork.soap/guild/get_guild_by_id"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
    <operation name="create_guild">
      <soap:operation soapAction="http://ashennetwork.soap/guild/create_guild"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
    <operation name="join_guild">
      <soap:operation soapAction="http://ashennetwork.soap/guild/join_guild"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
    <operation name="get_guild_members">
      <soap:operation soapAction="http://ashennetwork.soap/guild/get_guild_members"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
  </binding>

  <service name="GuildService">
    <port name="GuildServicePort" binding="tns:GuildServiceSoapBinding">
      <soap:address location="{{LOCATION}}"/>
    </port>
  </service>
</definitions>
`
