// Пакет model — доменные модели HalamangGaling API.
package model

import "time"

// Уровни доступа к записи традиционного знания.
const (
	AccessPublic          = "public"
	AccessRegisteredUsers = "registered_users"
	AccessResearchersOnly = "researchers_only"
	AccessCommunityOnly   = "community_only"
	AccessRestricted      = "restricted"
	AccessPrivate         = "private"
)

// Статусы интеллектуальной собственности (IPR).
const (
	IPRPublicDomain      = "public_domain"
	IPRProtected         = "protected"
	IPRProprietary       = "proprietary"
	IPRRestricted        = "restricted"
	IPRPendingAssessment = "pending_assessment"
)

// DefaultAccessPurpose — цель доступа, если вызывающий её не указал.
const DefaultAccessPurpose = "View"

// AccessLevels — все допустимые уровни доступа.
var AccessLevels = []string{
	AccessPublic, AccessRegisteredUsers, AccessResearchersOnly,
	AccessCommunityOnly, AccessRestricted, AccessPrivate,
}

// IPRStatuses — все допустимые IPR-статусы.
var IPRStatuses = []string{
	IPRPublicDomain, IPRProtected, IPRProprietary, IPRRestricted, IPRPendingAssessment,
}

// KnowledgeTypes — допустимые типы традиционного знания.
var KnowledgeTypes = []string{
	"Medicinal Use", "Preparation Method", "Cultural Practice", "Spiritual Use",
	"Agricultural Practice", "Conservation Method", "Other",
}

// ScopesOfUse — допустимые области использования в рамках PIC.
var ScopesOfUse = []string{
	"Research", "Education", "Publication", "Commercial", "Database Inclusion", "Public Display",
}

// ProtectionLevels — уровни правовой защиты.
var ProtectionLevels = []string{"None", "Community", "National", "International"}

// SensitivityLevels — уровни чувствительности знания.
var SensitivityLevels = []string{"Low", "Medium", "High", "Sacred"}

// KnowledgeRecord — запись традиционного знания коренной общины.
// Хранится в таблице indigenous_knowledge.
type KnowledgeRecord struct {
	// ID — UUID записи, неизменяемый
	ID                   string               `json:"id"`
	Community            Community            `json:"community"`
	KnowledgeType        string               `json:"knowledgeType"`
	Plants               []string             `json:"plants"`
	RelatedStudies       []string             `json:"relatedStudies"`
	TraditionalKnowledge TraditionalKnowledge `json:"traditionalKnowledge"`
	Consent              Consent              `json:"consent"`
	IPR                  IPR                  `json:"ipr"`
	AccessLevel          string               `json:"accessLevel"`
	Sensitivity          Sensitivity          `json:"sensitivity"`
	// Media — чувствительные материалы, в списках не отдаются
	Media         []Media   `json:"media,omitempty"`
	RecordedBy    Recorder  `json:"recordedBy"`
	RecordingDate time.Time `json:"recordingDate"`
	// AccessLog — журнал доступа, только дозапись
	AccessLog  []AccessLogEntry `json:"accessLog,omitempty"`
	Compliance Compliance       `json:"compliance"`
	// IsActive — false означает архивную запись (терминальное состояние)
	IsActive      bool       `json:"isActive"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	ArchiveReason *string    `json:"archiveReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Community — община-источник знания.
type Community struct {
	Name            string   `json:"name"`
	IndigenousGroup string   `json:"indigenousGroup"`
	Location        Location `json:"location"`
}

// Location — местоположение общины.
type Location struct {
	Region       string       `json:"region,omitempty"`
	Province     string       `json:"province,omitempty"`
	Municipality string       `json:"municipality,omitempty"`
	Barangay     string       `json:"barangay,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates — географические координаты.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TraditionalKnowledge — содержательная часть знания.
type TraditionalKnowledge struct {
	Description        string `json:"description"`
	Usage              string `json:"usage,omitempty"`
	Preparation        string `json:"preparation,omitempty"`
	Rituals            string `json:"rituals,omitempty"`
	Prohibitions       string `json:"prohibitions,omitempty"`
	Seasonality        string `json:"seasonality,omitempty"`
	TransmissionMethod string `json:"transmissionMethod,omitempty"`
}

// Consent — предварительное информированное согласие (PIC).
type Consent struct {
	Obtained    bool       `json:"obtained"`
	ConsentID   *string    `json:"consentId,omitempty"`
	ConsentDate *time.Time `json:"consentDate,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	ScopeOfUse  []string   `json:"scopeOfUse"`
	// Document — URL подписанного документа, не отдаётся в публичной коллекции
	Document      *string    `json:"consentDocument,omitempty"`
	Restrictions  *string    `json:"restrictions,omitempty"`
	Revocable     bool       `json:"revocable"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	RevokedReason *string    `json:"revokedReason,omitempty"`
}

// IPR — статус интеллектуальной собственности.
type IPR struct {
	Status             string     `json:"status"`
	RegistrationNumber *string    `json:"registrationNumber,omitempty"`
	RegisteredWith     *string    `json:"registeredWith,omitempty"`
	RegistrationDate   *time.Time `json:"registrationDate,omitempty"`
	ProtectionLevel    *string    `json:"protectionLevel,omitempty"`
}

// Sensitivity — классификация чувствительности.
type Sensitivity struct {
	Level  string `json:"level"`
	Reason string `json:"reason,omitempty"`
}

// Media — медиаматериал записи.
type Media struct {
	Type          string `json:"type"`
	URL           string `json:"url"`
	Description   string `json:"description,omitempty"`
	ConsentForUse bool   `json:"consentForUse"`
}

// Recorder — кто задокументировал знание. Заполняется сервером.
type Recorder struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
	Role        string `json:"role"`
}

// AccessLogEntry — запись журнала доступа.
type AccessLogEntry struct {
	// UserID — nil для анонимного доступа
	UserID     *string   `json:"userId"`
	Username   string    `json:"username"`
	AccessDate time.Time `json:"accessDate"`
	Purpose    string    `json:"purpose"`
	Approved   bool      `json:"approved"`
}

// Compliance — флаги соответствия IPRA, Нагойскому протоколу и NCIP.
type Compliance struct {
	IPRACompliant   bool       `json:"ipraCompliant"`
	NagoyaCompliant bool       `json:"nagoyaCompliant"`
	NCIPApproved    bool       `json:"ncipApproved"`
	LastReviewDate  *time.Time `json:"lastReviewDate,omitempty"`
	NextReviewDate  *time.Time `json:"nextReviewDate,omitempty"`
}

// Redacted возвращает копию записи без журнала доступа и медиа.
func (r KnowledgeRecord) Redacted() KnowledgeRecord {
	r.AccessLog = nil
	r.Media = nil
	return r
}

// PublicView возвращает копию записи для анонимной публичной коллекции:
// без журнала доступа и документа согласия.
func (r KnowledgeRecord) PublicView() KnowledgeRecord {
	r.AccessLog = nil
	r.Consent.Document = nil
	return r
}

// Contains сообщает, входит ли значение в набор допустимых.
func Contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}
