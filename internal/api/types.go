package api

import (
	"encoding/json"
	"time"
)

// The backend is not consistent about identifier keys: records coming out of
// its document store carry "_id" while the login payload carries "id". Every
// record type accepts both.

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u *User) UnmarshalJSON(b []byte) error {
	type alias User
	aux := struct {
		*alias
		DocID string `json:"_id"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.DocID
	}
	return nil
}

type OwnerRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (o *OwnerRef) UnmarshalJSON(b []byte) error {
	type alias OwnerRef
	aux := struct {
		*alias
		DocID string `json:"_id"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.DocID
	}
	return nil
}

type FileRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	Owner      *OwnerRef `json:"owner,omitempty"`
	ShareCount int       `json:"shareCount,omitempty"`
}

func (f *FileRecord) UnmarshalJSON(b []byte) error {
	type alias FileRecord
	aux := struct {
		*alias
		DocID string `json:"_id"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = aux.DocID
	}
	return nil
}

// ShareRecord grants Receiver access to File. CanView is always true; the
// other flags only choose which controls the client renders.
type ShareRecord struct {
	ID        string      `json:"id"`
	File      *FileRecord `json:"file,omitempty"`
	Owner     *OwnerRef   `json:"owner,omitempty"`
	Receiver  *OwnerRef   `json:"receiver,omitempty"`
	CanView   bool        `json:"canView"`
	CanEdit   bool        `json:"canEdit"`
	CanDelete bool        `json:"canDelete"`
}

func (s *ShareRecord) UnmarshalJSON(b []byte) error {
	type alias ShareRecord
	aux := struct {
		*alias
		DocID string `json:"_id"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = aux.DocID
	}
	return nil
}

type AdminMeta struct {
	TotalUsers  int `json:"totalUsers"`
	TotalFiles  int `json:"totalFiles"`
	TotalShares int `json:"totalShares"`
}

type AdminOverview struct {
	Meta  AdminMeta    `json:"meta"`
	Users []User       `json:"users"`
	Files []FileRecord `json:"files"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ShareRequest struct {
	FileID        string `json:"fileId"`
	ReceiverEmail string `json:"receiverEmail"`
	CanView       bool   `json:"canView"`
	CanEdit       bool   `json:"canEdit"`
	CanDelete     bool   `json:"canDelete"`
}
