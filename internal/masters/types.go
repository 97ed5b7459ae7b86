// Package masters maps rows of PCA master exports onto typed records.
//
// Every optional field is a pointer: a nil field is left out of the written
// payload by OmitAbsentFields, so a merge write keeps whatever the store
// already holds for it.
package masters

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindAccounts    Kind = "accounts"
	KindSubAccounts Kind = "subAccounts"
	KindDepartments Kind = "departments"
	KindTaxes       Kind = "taxes"
	KindCategories  Kind = "categories"
)

// ImportKinds are the kinds accepted by the file importer.
var ImportKinds = []Kind{KindAccounts, KindSubAccounts, KindDepartments, KindTaxes}

// ListKinds are the kinds served by the master listing endpoint.
var ListKinds = []Kind{KindAccounts, KindSubAccounts, KindDepartments, KindTaxes, KindCategories}

func ParseImportKind(raw string) (Kind, error) {
	for _, k := range ImportKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown import kind %q", raw)
}

func ParseListKind(raw string) (Kind, error) {
	for _, k := range ListKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown master kind %q", raw)
}

// KeyField is the field holding the natural key of a stored record.
func (k Kind) KeyField() string {
	switch k {
	case KindAccounts:
		return "pcaCode"
	case KindSubAccounts:
		return "id"
	case KindDepartments:
		return "pcaDeptCode"
	case KindTaxes:
		return "pcaTaxCode"
	default:
		return "id"
	}
}

const (
	BalanceDebit  = 1
	BalanceCredit = 2
)

const (
	CostVariable     = 0
	CostFixed        = 1
	CostSemiVariable = 2
	CostRevenue      = 3
)

type Account struct {
	PcaCode            string     `firestore:"pcaCode" json:"pcaCode"`
	AttributeCode      *string    `firestore:"attributeCode" json:"attributeCode,omitempty"`
	Name               *string    `firestore:"name" json:"name,omitempty"`
	KanaIndex          *string    `firestore:"kanaIndex" json:"kanaIndex,omitempty"`
	FullName           *string    `firestore:"fullName" json:"fullName,omitempty"`
	BalanceType        *int       `firestore:"balanceType" json:"balanceType,omitempty"`
	DebitTaxCode       *string    `firestore:"debitTaxCode" json:"debitTaxCode,omitempty"`
	DebitTaxName       *string    `firestore:"debitTaxName" json:"debitTaxName,omitempty"`
	CreditTaxCode      *string    `firestore:"creditTaxCode" json:"creditTaxCode,omitempty"`
	CreditTaxName      *string    `firestore:"creditTaxName" json:"creditTaxName,omitempty"`
	RelatedAccountCode *string    `firestore:"relatedAccountCode" json:"relatedAccountCode,omitempty"`
	RelatedAccountName *string    `firestore:"relatedAccountName" json:"relatedAccountName,omitempty"`
	DisplayType        *int       `firestore:"displayType" json:"displayType,omitempty"`
	AutoTaxCalc        *int       `firestore:"autoTaxCalc" json:"autoTaxCalc,omitempty"`
	TaxRounding        *int       `firestore:"taxRounding" json:"taxRounding,omitempty"`
	CostType           *int       `firestore:"costType" json:"costType,omitempty"`
	FixedCostRatio     *int       `firestore:"fixedCostRatio" json:"fixedCostRatio,omitempty"`
	BusinessType       *int       `firestore:"businessType" json:"businessType,omitempty"`
	RequiresPartner    *bool      `firestore:"requiresPartner" json:"requiresPartner,omitempty"`
	StatementSetting   *string    `firestore:"statementSetting" json:"statementSetting,omitempty"`
	Aliases            []string   `firestore:"aliases" json:"aliases,omitempty"`
	IsActive           bool       `firestore:"isActive" json:"isActive"`
	EffectiveFrom      time.Time  `firestore:"effectiveFrom" json:"effectiveFrom"`
	EffectiveTo        *time.Time `firestore:"effectiveTo" json:"effectiveTo,omitempty"`
}

type SubAccount struct {
	AccountCode               string  `firestore:"accountCode" json:"accountCode"`
	AccountName               *string `firestore:"accountName" json:"accountName,omitempty"`
	PcaSubCode                string  `firestore:"pcaSubCode" json:"pcaSubCode"`
	Name                      string  `firestore:"name" json:"name"`
	KanaIndex                 *string `firestore:"kanaIndex" json:"kanaIndex,omitempty"`
	FullName                  *string `firestore:"fullName" json:"fullName,omitempty"`
	FullNameKana              *string `firestore:"fullNameKana" json:"fullNameKana,omitempty"`
	DebitTaxCode              *string `firestore:"debitTaxCode" json:"debitTaxCode,omitempty"`
	DebitTaxName              *string `firestore:"debitTaxName" json:"debitTaxName,omitempty"`
	CreditTaxCode             *string `firestore:"creditTaxCode" json:"creditTaxCode,omitempty"`
	CreditTaxName             *string `firestore:"creditTaxName" json:"creditTaxName,omitempty"`
	AutoTaxCalc               *int    `firestore:"autoTaxCalc" json:"autoTaxCalc,omitempty"`
	TaxRounding               *int    `firestore:"taxRounding" json:"taxRounding,omitempty"`
	PostalCode                *string `firestore:"postalCode" json:"postalCode,omitempty"`
	Address1                  *string `firestore:"address1" json:"address1,omitempty"`
	Address2                  *string `firestore:"address2" json:"address2,omitempty"`
	Tel                       *string `firestore:"tel" json:"tel,omitempty"`
	Fax                       *string `firestore:"fax" json:"fax,omitempty"`
	BankInfo                  *string `firestore:"bankInfo" json:"bankInfo,omitempty"`
	ClosingDay                *int    `firestore:"closingDay" json:"closingDay,omitempty"`
	PaymentDay                *int    `firestore:"paymentDay" json:"paymentDay,omitempty"`
	CorporateNumber           *string `firestore:"corporateNumber" json:"corporateNumber,omitempty"`
	BusinessType              *int    `firestore:"businessType" json:"businessType,omitempty"`
	InvoiceRegistrationNumber *string `firestore:"invoiceRegistrationNumber" json:"invoiceRegistrationNumber,omitempty"`
	DigitalInvoiceReceive     *int    `firestore:"digitalInvoiceReceive" json:"digitalInvoiceReceive,omitempty"`
	IsActive                  bool    `firestore:"isActive" json:"isActive"`
}

// Key is the composite document ID of a sub-account.
func (s SubAccount) Key() string {
	return SubAccountKey(s.AccountCode, s.PcaSubCode)
}

func SubAccountKey(accountCode, subCode string) string {
	return accountCode + "-" + subCode
}

type Department struct {
	PcaDeptCode   string     `firestore:"pcaDeptCode" json:"pcaDeptCode"`
	Name          *string    `firestore:"name" json:"name,omitempty"`
	KanaIndex     *string    `firestore:"kanaIndex" json:"kanaIndex,omitempty"`
	BusinessType  *int       `firestore:"businessType" json:"businessType,omitempty"`
	ParentCode    *string    `firestore:"parentCode" json:"parentCode,omitempty"`
	IsActive      bool       `firestore:"isActive" json:"isActive"`
	EffectiveFrom time.Time  `firestore:"effectiveFrom" json:"effectiveFrom"`
	EffectiveTo   *time.Time `firestore:"effectiveTo" json:"effectiveTo,omitempty"`
}

const (
	CommonDepartmentName = "共通部門"
	CommonDepartmentKana = "ｷｮｳﾂｳﾌﾞﾓﾝ"
)

func IsCommonDepartment(code string) bool {
	return code == "0" || code == "000"
}

type TaxShape int

const (
	// TaxShapeRate carries a percentage rate, rounding and method.
	TaxShapeRate TaxShape = iota
	// TaxShapeCode carries the PCA short name and description only.
	TaxShapeCode
)

const (
	RoundingRound = "round"
	RoundingCeil  = "ceil"
	RoundingFloor = "floor"

	MethodInclusive = "inclusive"
	MethodExclusive = "exclusive"
)

type Tax struct {
	PcaTaxCode    string    `firestore:"pcaTaxCode" json:"pcaTaxCode"`
	Name          *string   `firestore:"name" json:"name,omitempty"`
	Rate          *float64  `firestore:"rate" json:"rate,omitempty"`
	Rounding      *string   `firestore:"rounding" json:"rounding,omitempty"`
	Method        *string   `firestore:"method" json:"method,omitempty"`
	ShortName     *string   `firestore:"shortName" json:"shortName,omitempty"`
	Description   *string   `firestore:"description" json:"description,omitempty"`
	IsActive      bool      `firestore:"isActive" json:"isActive"`
	EffectiveFrom time.Time `firestore:"effectiveFrom" json:"effectiveFrom"`
}

type Category struct {
	ID                          string   `firestore:"id" json:"id"`
	Name                        string   `firestore:"name" json:"name" yaml:"name"`
	DefaultDebitAccountPcaCode  *string  `firestore:"defaultDebitAccountPcaCode" json:"defaultDebitAccountPcaCode,omitempty" yaml:"defaultDebitAccountPcaCode,omitempty"`
	DefaultCreditAccountPcaCode *string  `firestore:"defaultCreditAccountPcaCode" json:"defaultCreditAccountPcaCode,omitempty" yaml:"defaultCreditAccountPcaCode,omitempty"`
	TaxRule                     *string  `firestore:"taxRule" json:"taxRule,omitempty" yaml:"taxRule,omitempty"`
	Hints                       []string `firestore:"hints" json:"hints,omitempty" yaml:"hints,omitempty"`
	Icon                        *string  `firestore:"icon" json:"icon,omitempty" yaml:"icon,omitempty"`
	Color                       *string  `firestore:"color" json:"color,omitempty" yaml:"color,omitempty"`
	SortOrder                   int      `firestore:"sortOrder" json:"sortOrder" yaml:"sortOrder"`
	IsActive                    bool     `firestore:"isActive" json:"isActive" yaml:"-"`
}

const (
	EncodingShiftJIS = "Shift_JIS"
	EncodingUTF8     = "UTF-8"
)

type ExportProfile struct {
	ID          string         `firestore:"id" json:"id" yaml:"id"`
	Name        string         `firestore:"name" json:"name" yaml:"name"`
	Encoding    string         `firestore:"encoding" json:"encoding" yaml:"encoding"`
	Delimiter   string         `firestore:"delimiter" json:"delimiter" yaml:"delimiter"`
	DateFormat  string         `firestore:"dateFormat" json:"dateFormat" yaml:"dateFormat"`
	MappingJSON map[string]any `firestore:"mappingJson" json:"mappingJson" yaml:"mappingJson"`
}

// Validate checks the enumerated fields of an export profile.
func (p ExportProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Encoding != EncodingShiftJIS && p.Encoding != EncodingUTF8 {
		return fmt.Errorf("encoding must be %s or %s", EncodingShiftJIS, EncodingUTF8)
	}
	if p.Delimiter != "," && p.Delimiter != "\t" {
		return fmt.Errorf("delimiter must be a comma or a tab")
	}
	return nil
}
