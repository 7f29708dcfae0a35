package ews

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const envelopeHeader = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
               xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types"
               xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
  <soap:Header>
    <t:RequestServerVersion Version="Exchange2013_SP1"/>
  </soap:Header>
  <soap:Body>
`

const envelopeFooter = `
  </soap:Body>
</soap:Envelope>`

func envelope(body string) []byte {
	return []byte(envelopeHeader + body + envelopeFooter)
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// syncKeyField addresses the named property that holds the sync key.
const syncKeyField = `<t:ExtendedFieldURI DistinguishedPropertySetId="PublicStrings" PropertyName="CalsyncKey" PropertyType="String"/>`

func folderID(calendarID string) string {
	if calendarID == "" || calendarID == DefaultCalendar {
		return `<t:DistinguishedFolderId Id="calendar"/>`
	}
	return fmt.Sprintf(`<t:FolderId Id="%s"/>`, escape(calendarID))
}

func findFolderRequest() []byte {
	return envelope(`    <m:FindFolder Traversal="Deep">
      <m:FolderShape>
        <t:BaseShape>Default</t:BaseShape>
      </m:FolderShape>
      <m:ParentFolderIds>
        <t:DistinguishedFolderId Id="msgfolderroot"/>
      </m:ParentFolderIds>
    </m:FindFolder>`)
}

func findItemRequest(calendarID, start, end string, max int) []byte {
	return envelope(fmt.Sprintf(`    <m:FindItem Traversal="Shallow">
      <m:ItemShape>
        <t:BaseShape>IdOnly</t:BaseShape>
        <t:AdditionalProperties>
          <t:FieldURI FieldURI="calendar:Start"/>
        </t:AdditionalProperties>
      </m:ItemShape>
      <m:CalendarView MaxEntriesReturned="%d" StartDate="%s" EndDate="%s"/>
      <m:ParentFolderIds>
        %s
      </m:ParentFolderIds>
    </m:FindItem>`, max, start, end, folderID(calendarID)))
}

func getItemRequest(ids []string) []byte {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, `<t:ItemId Id="%s"/>`, escape(id))
	}
	return envelope(fmt.Sprintf(`    <m:GetItem>
      <m:ItemShape>
        <t:BaseShape>IdOnly</t:BaseShape>
        <t:BodyType>Text</t:BodyType>
        <t:AdditionalProperties>
          <t:FieldURI FieldURI="item:Subject"/>
          <t:FieldURI FieldURI="item:Body"/>
          <t:FieldURI FieldURI="item:Categories"/>
          <t:FieldURI FieldURI="item:LastModifiedTime"/>
          <t:FieldURI FieldURI="calendar:Start"/>
          <t:FieldURI FieldURI="calendar:End"/>
          <t:FieldURI FieldURI="calendar:IsAllDayEvent"/>
          <t:FieldURI FieldURI="calendar:IsCancelled"/>
          <t:FieldURI FieldURI="calendar:IsRecurring"/>
          <t:FieldURI FieldURI="calendar:CalendarItemType"/>
          <t:FieldURI FieldURI="calendar:Location"/>
          <t:FieldURI FieldURI="calendar:Organizer"/>
          <t:FieldURI FieldURI="calendar:RequiredAttendees"/>
          <t:FieldURI FieldURI="calendar:OptionalAttendees"/>
          %s
        </t:AdditionalProperties>
      </m:ItemShape>
      <m:ItemIds>%s</m:ItemIds>
    </m:GetItem>`, syncKeyField, b.String()))
}

// newItem is the calendar item written on CreateItem. Field order follows
// the EWS schema.
type newItem struct {
	XMLName    xml.Name            `xml:"t:CalendarItem"`
	Subject    string              `xml:"t:Subject"`
	Body       itemBody            `xml:"t:Body"`
	Categories *stringList         `xml:"t:Categories,omitempty"`
	Extended   []extendedPropertyW `xml:"t:ExtendedProperty,omitempty"`
	Start      string              `xml:"t:Start"`
	End        string              `xml:"t:End"`
	IsAllDay   bool                `xml:"t:IsAllDayEvent"`
	Location   string              `xml:"t:Location"`
}

type itemBody struct {
	Type    string `xml:"BodyType,attr"`
	Content string `xml:",chardata"`
}

type stringList struct {
	Values []string `xml:"t:String"`
}

type extendedPropertyW struct {
	Inner string `xml:",innerxml"`
}

func syncKeyProperty(key string) extendedPropertyW {
	return extendedPropertyW{Inner: syncKeyField + "<t:Value>" + escape(key) + "</t:Value>"}
}

func createItemRequest(calendarID string, item newItem) ([]byte, error) {
	b, err := xml.Marshal(item)
	if err != nil {
		return nil, err
	}
	return envelope(fmt.Sprintf(`    <m:CreateItem SendMeetingInvitations="SendToNone">
      <m:SavedItemFolderId>%s</m:SavedItemFolderId>
      <m:Items>%s</m:Items>
    </m:CreateItem>`, folderID(calendarID), b)), nil
}

func updateItemRequest(itemID string, item newItem) ([]byte, error) {
	fields := []struct {
		uri  string
		name string
		v    any
	}{
		{`<t:FieldURI FieldURI="item:Subject"/>`, "t:Subject", item.Subject},
		{`<t:FieldURI FieldURI="item:Body"/>`, "t:Body", item.Body},
		{`<t:FieldURI FieldURI="calendar:Start"/>`, "t:Start", item.Start},
		{`<t:FieldURI FieldURI="calendar:End"/>`, "t:End", item.End},
		{`<t:FieldURI FieldURI="calendar:IsAllDayEvent"/>`, "t:IsAllDayEvent", item.IsAllDay},
		{`<t:FieldURI FieldURI="calendar:Location"/>`, "t:Location", item.Location},
	}
	if item.Categories != nil {
		fields = append(fields, struct {
			uri  string
			name string
			v    any
		}{`<t:FieldURI FieldURI="item:Categories"/>`, "t:Categories", item.Categories})
	}

	var updates bytes.Buffer
	for _, f := range fields {
		updates.WriteString(`<t:SetItemField>` + f.uri + `<t:CalendarItem>`)
		enc := xml.NewEncoder(&updates)
		if err := enc.EncodeElement(f.v, xml.StartElement{Name: xml.Name{Local: f.name}}); err != nil {
			return nil, err
		}
		if err := enc.Flush(); err != nil {
			return nil, err
		}
		updates.WriteString(`</t:CalendarItem></t:SetItemField>`)
	}
	for _, p := range item.Extended {
		fmt.Fprintf(&updates, `<t:SetItemField>%s<t:CalendarItem><t:ExtendedProperty>%s</t:ExtendedProperty></t:CalendarItem></t:SetItemField>`, syncKeyField, p.Inner)
	}

	return envelope(fmt.Sprintf(`    <m:UpdateItem ConflictResolution="AlwaysOverwrite" SendMeetingInvitationsOrCancellations="SendToNone">
      <m:ItemChanges>
        <t:ItemChange>
          <t:ItemId Id="%s"/>
          <t:Updates>%s</t:Updates>
        </t:ItemChange>
      </m:ItemChanges>
    </m:UpdateItem>`, escape(itemID), updates.String())), nil
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		FindFolder struct {
			Messages []findFolderMessage `xml:"ResponseMessages>FindFolderResponseMessage"`
		} `xml:"FindFolderResponse"`
		FindItem struct {
			Messages []findItemMessage `xml:"ResponseMessages>FindItemResponseMessage"`
		} `xml:"FindItemResponse"`
		GetItem struct {
			Messages []itemsMessage `xml:"ResponseMessages>GetItemResponseMessage"`
		} `xml:"GetItemResponse"`
		CreateItem struct {
			Messages []itemsMessage `xml:"ResponseMessages>CreateItemResponseMessage"`
		} `xml:"CreateItemResponse"`
		UpdateItem struct {
			Messages []itemsMessage `xml:"ResponseMessages>UpdateItemResponseMessage"`
		} `xml:"UpdateItemResponse"`
	} `xml:"Body"`
}

type responseMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
	BackOff       string `xml:"MessageXml>Value"`
}

func (m responseMessage) err() error {
	if m.ResponseClass != "Error" {
		return nil
	}
	backOff, _ := strconv.Atoi(strings.TrimSpace(m.BackOff))
	return &responseError{Code: m.ResponseCode, Message: m.MessageText, BackOffMillis: backOff}
}

type findFolderMessage struct {
	responseMessage
	Folders []calendarFolder `xml:"RootFolder>Folders>CalendarFolder"`
}

type calendarFolder struct {
	FolderID struct {
		ID string `xml:"Id,attr"`
	} `xml:"FolderId"`
	DisplayName string `xml:"DisplayName"`
}

type findItemMessage struct {
	responseMessage
	RootFolder struct {
		IncludesLastItemInRange bool           `xml:"IncludesLastItemInRange,attr"`
		Items                   []calendarItem `xml:"Items>CalendarItem"`
	} `xml:"RootFolder"`
}

type itemsMessage struct {
	responseMessage
	Items []calendarItem `xml:"Items>CalendarItem"`
}

type calendarItem struct {
	ItemID struct {
		ID        string `xml:"Id,attr"`
		ChangeKey string `xml:"ChangeKey,attr"`
	} `xml:"ItemId"`
	Subject          string             `xml:"Subject"`
	Body             string             `xml:"Body"`
	Categories       []string           `xml:"Categories>String"`
	LastModifiedTime string             `xml:"LastModifiedTime"`
	Start            string             `xml:"Start"`
	End              string             `xml:"End"`
	IsAllDayEvent    bool               `xml:"IsAllDayEvent"`
	IsCancelled      bool               `xml:"IsCancelled"`
	IsRecurring      bool               `xml:"IsRecurring"`
	CalendarItemType string             `xml:"CalendarItemType"`
	Location         string             `xml:"Location"`
	Organizer        string             `xml:"Organizer>Mailbox>EmailAddress"`
	Required         []string           `xml:"RequiredAttendees>Attendee>Mailbox>EmailAddress"`
	Optional         []string           `xml:"OptionalAttendees>Attendee>Mailbox>EmailAddress"`
	Extended         []extendedProperty `xml:"ExtendedProperty"`
}

type extendedProperty struct {
	Field struct {
		PropertyName string `xml:"PropertyName,attr"`
	} `xml:"ExtendedFieldURI"`
	Value string `xml:"Value"`
}

type responseError struct {
	Code          string
	Message       string
	BackOffMillis int
}

func (e *responseError) Error() string {
	return fmt.Sprintf("ews: %s: %s", e.Code, e.Message)
}

func itemNotFound(err error) bool {
	rerr, ok := err.(*responseError)
	return ok && rerr.Code == "ErrorItemNotFound"
}

func (e *responseError) throttled() bool {
	return e.Code == "ErrorServerBusy" || e.Code == "ErrorTooManyObjectsOpened"
}
