package model

import "time"

// Уровни доступа к карточке лекарственного растения.
const (
	PlantAccessPublic     = "public"
	PlantAccessRegistered = "registered"
	PlantAccessResearcher = "researcher"
	PlantAccessRestricted = "restricted"
)

// PlantAccessLevels — уровни доступа в порядке возрастания строгости.
var PlantAccessLevels = []string{
	PlantAccessPublic, PlantAccessRegistered, PlantAccessResearcher, PlantAccessRestricted,
}

// Статусы проверки карточки растения.
const (
	PlantStatusDraft         = "draft"
	PlantStatusPendingReview = "pending_review"
	PlantStatusUnderReview   = "under_review"
	PlantStatusApproved      = "approved"
	PlantStatusPublished     = "published"
	PlantStatusArchived      = "archived"
)

// PlantStatuses — все статусы проверки.
var PlantStatuses = []string{
	PlantStatusDraft, PlantStatusPendingReview, PlantStatusUnderReview,
	PlantStatusApproved, PlantStatusPublished, PlantStatusArchived,
}

// IPR-статусы традиционного применения растения.
const (
	UseIPRPublic     = "public"
	UseIPRProtected  = "protected"
	UseIPRRestricted = "restricted"
	UseIPRPending    = "pending"
)

// UseIPRStatuses — допустимые IPR-статусы применения.
var UseIPRStatuses = []string{UseIPRPublic, UseIPRProtected, UseIPRRestricted, UseIPRPending}

// EvidenceLevels — уровни доказательности, от сильнейшего к слабейшему.
var EvidenceLevels = []string{"Level I", "Level II", "Level III", "Level IV", "Level V"}

// CommonNameLanguages — языки народных названий.
var CommonNameLanguages = []string{
	"English", "Filipino", "Tagalog", "Cebuano", "Ilocano",
	"Hiligaynon", "Waray", "Kapampangan", "Bikol", "Other",
}

// PhilippineRegions — административные регионы распространения.
var PhilippineRegions = []string{
	"NCR", "CAR", "Region I", "Region II", "Region III", "Region IV-A", "Region IV-B",
	"Region V", "Region VI", "Region VII", "Region VIII", "Region IX", "Region X",
	"Region XI", "Region XII", "Region XIII", "BARMM", "Nationwide",
}

// ToxicityLevels — уровни токсичности.
var ToxicityLevels = []string{"None", "Low", "Moderate", "High", "Severe"}

// PlantParts — части растения.
var PlantParts = []string{"Leaf", "Root", "Bark", "Flower", "Fruit", "Seed", "Whole Plant", "Other"}

// PreparationMethods — способы приготовления.
var PreparationMethods = []string{
	"Decoction", "Infusion", "Tincture", "Extract", "Powder", "Fresh", "Poultice", "Oil", "Other",
}

// StudyTypes — типы клинических исследований.
var StudyTypes = []string{
	"In vitro", "In vivo", "Clinical Trial", "Case Study", "Systematic Review", "Meta-analysis",
}

// Роли участников подготовки карточки.
const (
	ContributorCreator  = "creator"
	ContributorReviewer = "reviewer"
	ContributorEditor   = "editor"
)

// Plant — карточка лекарственного растения.
// Хранится в таблице medicinal_plants, прежние версии в medicinal_plant_versions.
type Plant struct {
	ID               string             `json:"id"`
	Names            PlantNames         `json:"names"`
	TraditionalUses  []TraditionalUse   `json:"traditionalUses"`
	Phytochemicals   []Phytochemical    `json:"phytochemicals"`
	ClinicalEvidence []ClinicalEvidence `json:"clinicalEvidence"`
	Dosage           []Dosage           `json:"dosage"`
	Safety           PlantSafety        `json:"safety"`
	Distribution     Distribution       `json:"distribution"`
	Description      PlantDescription   `json:"description"`
	Images           []PlantImage       `json:"images"`
	ValidationStatus string             `json:"validationStatus"`
	// ReviewHistory и Contributors видны только редакции
	ReviewHistory []PlantReview `json:"reviewHistory,omitempty"`
	Contributors  []Contributor `json:"contributors,omitempty"`
	Tags          []string      `json:"tags"`
	AccessLevel   string        `json:"accessLevel"`
	// Version — номер текущей версии, начинается с 1
	Version          int              `json:"version"`
	RegulatoryStatus RegulatoryStatus `json:"regulatoryStatus"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// PlantNames — научное и народные названия.
type PlantNames struct {
	Scientific  string       `json:"scientific"`
	CommonNames []CommonName `json:"commonNames,omitempty"`
	Synonyms    []string     `json:"synonyms,omitempty"`
	Family      string       `json:"family,omitempty"`
	Genus       string       `json:"genus,omitempty"`
}

// CommonName — народное название на одном из языков.
type CommonName struct {
	Language string `json:"language"`
	Name     string `json:"name"`
}

// TraditionalUse — традиционное применение растения.
type TraditionalUse struct {
	Condition      string `json:"condition"`
	Preparation    string `json:"preparation"`
	Administration string `json:"administration,omitempty"`
	Dosage         string `json:"dosage,omitempty"`
	// Sources — общины-источники, видны исследователям и выше
	Sources   []UseSource `json:"sources,omitempty"`
	IPRStatus string      `json:"iprStatus"`
}

// UseSource — источник сведений о применении.
type UseSource struct {
	Community    string        `json:"community,omitempty"`
	Region       string        `json:"region,omitempty"`
	Ethnicity    string        `json:"ethnicity,omitempty"`
	RecordedBy   string        `json:"recordedBy,omitempty"`
	RecordedDate *time.Time    `json:"recordedDate,omitempty"`
	Consent      SourceConsent `json:"consent"`
}

// SourceConsent — согласие общины-источника.
type SourceConsent struct {
	Obtained   bool       `json:"obtained"`
	ConsentID  string     `json:"consentId,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// Phytochemical — активное соединение.
type Phytochemical struct {
	Compound      string   `json:"compound"`
	Class         string   `json:"class,omitempty"`
	Concentration string   `json:"concentration,omitempty"`
	PlantPart     string   `json:"plantPart,omitempty"`
	Bioactivity   []string `json:"bioactivity,omitempty"`
}

// ClinicalEvidence — результат исследования.
type ClinicalEvidence struct {
	StudyType     string `json:"studyType"`
	Condition     string `json:"condition,omitempty"`
	Findings      string `json:"findings,omitempty"`
	Efficacy      string `json:"efficacy,omitempty"`
	EvidenceLevel string `json:"evidenceLevel,omitempty"`
}

// Dosage — рекомендованная дозировка.
type Dosage struct {
	Preparation  string `json:"preparation,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	PlantPart    string `json:"plantPart,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	AgeGroup     string `json:"ageGroup,omitempty"`
}

// PlantSafety — противопоказания и токсичность.
type PlantSafety struct {
	Contraindications []string      `json:"contraindications,omitempty"`
	SideEffects       []string      `json:"sideEffects,omitempty"`
	Interactions      []Interaction `json:"interactions,omitempty"`
	Toxicity          Toxicity      `json:"toxicity"`
	Pregnancy         string        `json:"pregnancy,omitempty"`
	Lactation         string        `json:"lactation,omitempty"`
}

// Interaction — взаимодействие с веществом.
type Interaction struct {
	Substance string `json:"substance"`
	Effect    string `json:"effect,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

// Toxicity — токсичность.
type Toxicity struct {
	Level   string `json:"level,omitempty"`
	Details string `json:"details,omitempty"`
	LD50    string `json:"ld50,omitempty"`
}

// Distribution — распространение на Филиппинах.
type Distribution struct {
	Regions            []string `json:"regions,omitempty"`
	Provinces          []string `json:"provinces,omitempty"`
	Habitat            string   `json:"habitat,omitempty"`
	Altitude           string   `json:"altitude,omitempty"`
	Climate            string   `json:"climate,omitempty"`
	Endemic            bool     `json:"endemic"`
	ConservationStatus string   `json:"conservationStatus,omitempty"`
}

// PlantDescription — ботаническое описание.
type PlantDescription struct {
	Botanical      string `json:"botanical,omitempty"`
	Morphology     string `json:"morphology,omitempty"`
	Identification string `json:"identification,omitempty"`
}

// PlantImage — изображение растения.
type PlantImage struct {
	URL       string `json:"url"`
	Caption   string `json:"caption,omitempty"`
	PlantPart string `json:"plantPart,omitempty"`
	Credit    string `json:"credit,omitempty"`
	License   string `json:"license,omitempty"`
}

// PlantReview — запись истории проверки.
type PlantReview struct {
	ReviewerID string    `json:"reviewerId"`
	Status     string    `json:"status"`
	Comments   string    `json:"comments,omitempty"`
	ReviewedAt time.Time `json:"reviewedAt"`
}

// Contributor — участник подготовки карточки.
type Contributor struct {
	UserID        string    `json:"userId"`
	Role          string    `json:"role"`
	Contribution  string    `json:"contribution,omitempty"`
	ContributedAt time.Time `json:"contributedAt"`
}

// RegulatoryStatus — регистрация в DOH и FDA Philippines.
type RegulatoryStatus struct {
	DOHApproved    bool       `json:"dohApproved"`
	FDAApproved    bool       `json:"fdaApproved"`
	ApprovalNumber string     `json:"approvalNumber,omitempty"`
	ApprovalDate   *time.Time `json:"approvalDate,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// PlantVersion — снимок карточки до изменения.
type PlantVersion struct {
	VersionNumber int       `json:"versionNumber"`
	Data          Plant     `json:"data"`
	UpdatedBy     string    `json:"updatedBy"`
	UpdatedAt     time.Time `json:"updatedAt"`
	ChangeLog     string    `json:"changeLog"`
}

// PlantSummary — краткая карточка для результатов поиска.
type PlantSummary struct {
	ID               string           `json:"id"`
	Names            PlantNames       `json:"names"`
	Distribution     Distribution     `json:"distribution"`
	Tags             []string         `json:"tags"`
	Toxicity         Toxicity         `json:"toxicity"`
	RegulatoryStatus RegulatoryStatus `json:"regulatoryStatus"`
	Images           []PlantImage     `json:"images"`
}

// Summary возвращает краткую карточку растения.
func (p Plant) Summary() PlantSummary {
	return PlantSummary{
		ID:               p.ID,
		Names:            p.Names,
		Distribution:     p.Distribution,
		Tags:             p.Tags,
		Toxicity:         p.Safety.Toxicity,
		RegulatoryStatus: p.RegulatoryStatus,
		Images:           p.Images,
	}
}

// HasContributor сообщает, участвовал ли пользователь в подготовке карточки.
func (p Plant) HasContributor(userID string) bool {
	for _, c := range p.Contributors {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
