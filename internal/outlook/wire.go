package outlook

type wireCalendar struct {
	ID                string        `json:"id,omitempty"`
	Name              string        `json:"name,omitempty"`
	Color             string        `json:"color,omitempty"`
	HexColor          string        `json:"hexColor,omitempty"`
	IsDefaultCalendar bool          `json:"isDefaultCalendar,omitempty"`
	CanEdit           bool          `json:"canEdit,omitempty"`
	Owner             *emailAddress `json:"owner,omitempty"`
}

type calendarList struct {
	Value    []wireCalendar `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type wireDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type responseStatus struct {
	Response string `json:"response"`
}

type wireAttendee struct {
	Type         string          `json:"type,omitempty"`
	Status       *responseStatus `json:"status,omitempty"`
	EmailAddress emailAddress    `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type location struct {
	DisplayName string `json:"displayName"`
}

// wireEvent is used for both reads and writes; read-only fields are omitted
// from write payloads by leaving them empty.
type wireEvent struct {
	ID                    string          `json:"id,omitempty"`
	Subject               string          `json:"subject"`
	Body                  *itemBody       `json:"body,omitempty"`
	Start                 *wireDateTime   `json:"start,omitempty"`
	End                   *wireDateTime   `json:"end,omitempty"`
	OriginalStartTimeZone string          `json:"originalStartTimeZone,omitempty"`
	OriginalEndTimeZone   string          `json:"originalEndTimeZone,omitempty"`
	Location              *location       `json:"location,omitempty"`
	IsAllDay              bool            `json:"isAllDay"`
	IsCancelled           bool            `json:"isCancelled,omitempty"`
	IsOrganizer           bool            `json:"isOrganizer,omitempty"`
	ShowAs                string          `json:"showAs,omitempty"`
	WebLink               string          `json:"webLink,omitempty"`
	Attendees             []wireAttendee  `json:"attendees,omitempty"`
	Organizer             *recipient      `json:"organizer,omitempty"`
	ResponseStatus        *responseStatus `json:"responseStatus,omitempty"`
	TransactionID         string          `json:"transactionId,omitempty"`
}

type eventList struct {
	Value    []wireEvent `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type responseBody struct {
	Comment      string `json:"comment,omitempty"`
	SendResponse bool   `json:"sendResponse"`
}
