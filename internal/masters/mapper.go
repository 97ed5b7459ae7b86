package masters

import (
	"fmt"
	"strings"
	"time"
)

type Result int

const (
	Ignored Result = iota
	Imported
	Skipped
)

func (r Result) String() string {
	switch r {
	case Imported:
		return "imported"
	case Skipped:
		return "skipped"
	default:
		return "ignored"
	}
}

// Outcome is the tagged result of mapping one row. Record is set only for
// Imported, Reason only for Skipped. Group carries the owning account code
// of sub-account rows.
type Outcome struct {
	Result Result
	Key    string
	Group  string
	Record any
	Reason string
}

// Mapper turns rows of one file into outcomes. It never fails on row
// content: unusable values fall back to defaults, and rows missing strictly
// required fields come back as Skipped.
type Mapper struct {
	kind  Kind
	shape TaxShape
	now   time.Time
}

func NewMapper(kind Kind, header []string, now time.Time) (*Mapper, error) {
	switch kind {
	case KindAccounts, KindSubAccounts, KindDepartments, KindTaxes:
	default:
		return nil, fmt.Errorf("kind %q cannot be imported", kind)
	}
	m := &Mapper{kind: kind, now: now}
	if kind == KindTaxes {
		m.shape = DetectTaxShape(header)
	}
	return m, nil
}

func (m *Mapper) TaxShape() TaxShape { return m.shape }

func (m *Mapper) Map(row Row) Outcome {
	switch m.kind {
	case KindAccounts:
		return mapAccount(row, m.now)
	case KindSubAccounts:
		return mapSubAccount(row)
	case KindDepartments:
		return mapDepartment(row, m.now)
	case KindTaxes:
		return mapTax(row, m.shape, m.now)
	}
	return Outcome{}
}

// DetectTaxShape picks the code shape when the header names a short name or
// description column and no rate column.
func DetectTaxShape(header []string) TaxShape {
	has := make(map[string]bool, len(header))
	for _, h := range header {
		has[strings.TrimSpace(h)] = true
	}
	if has["税率"] || has["rate"] {
		return TaxShapeRate
	}
	if has["略称"] || has["shortName"] || has["説明"] || has["description"] {
		return TaxShapeCode
	}
	return TaxShapeRate
}

func isEcho(value string, names ...string) bool {
	for _, n := range names {
		if n != "" && value == n {
			return true
		}
	}
	return false
}

func skippedf(group, format string, args ...any) Outcome {
	return Outcome{Result: Skipped, Group: group, Reason: fmt.Sprintf(format, args...)}
}

var accountColumns = table[Account]{
	text("勘定科目属性", "attributeCode", func(a *Account) **string { return &a.AttributeCode }),
	text("勘定科目名", "name", func(a *Account) **string { return &a.Name }),
	text("ｶﾅ索引", "kanaIndex", func(a *Account) **string { return &a.KanaIndex }),
	text("勘定科目正式名", "fullName", func(a *Account) **string { return &a.FullName }),
	integer("貸借区分", "balanceType", BalanceDebit, oneOf(BalanceDebit, BalanceCredit), func(a *Account) **int { return &a.BalanceType }),
	textOr("借方税区分コード", "debitTaxCode", "0", func(a *Account) **string { return &a.DebitTaxCode }),
	text("借方税区分名", "debitTaxName", func(a *Account) **string { return &a.DebitTaxName }),
	textOr("貸方税区分コード", "creditTaxCode", "0", func(a *Account) **string { return &a.CreditTaxCode }),
	text("貸方税区分名", "creditTaxName", func(a *Account) **string { return &a.CreditTaxName }),
	text("関連科目コード", "relatedAccountCode", func(a *Account) **string { return &a.RelatedAccountCode }),
	text("関連科目名", "relatedAccountName", func(a *Account) **string { return &a.RelatedAccountName }),
	integer("表示区分", "displayType", 0, anyInt, func(a *Account) **int { return &a.DisplayType }),
	integer("消費税自動計算", "autoTaxCalc", 9, oneOf(0, 9), func(a *Account) **int { return &a.AutoTaxCalc }),
	integer("消費税端数処理", "taxRounding", 9, oneOf(0, 9), func(a *Account) **int { return &a.TaxRounding }),
	integer("固定費変動費区分", "costType", CostVariable, between(CostVariable, CostRevenue), func(a *Account) **int { return &a.CostType }),
	optInteger("固定費割合", "fixedCostRatio", between(0, 100), func(a *Account) **int { return &a.FixedCostRatio }),
	optInteger("簡易課税業種", "businessType", between(1, 6), func(a *Account) **int { return &a.BusinessType }),
	flag("取引先入力", "requiresPartner", func(a *Account) **bool { return &a.RequiresPartner }),
	text("内訳書の設定", "statementSetting", func(a *Account) **string { return &a.StatementSetting }),
	date("開始日", "effectiveFrom", func(a *Account) *time.Time { return &a.EffectiveFrom }),
	optDate("終了日", "effectiveTo", func(a *Account) **time.Time { return &a.EffectiveTo }),
}

func mapAccount(row Row, now time.Time) Outcome {
	code, _ := row.Lookup("勘定科目コード", "pcaCode")
	if code == "" || isEcho(code, "勘定科目コード", "pcaCode") {
		return Outcome{}
	}

	rec := Account{PcaCode: code, IsActive: true, EffectiveFrom: now}
	accountColumns.fill(&rec, row)
	if rec.KanaIndex != nil && *rec.KanaIndex != "" {
		rec.Aliases = []string{*rec.KanaIndex}
	}
	return Outcome{Result: Imported, Key: code, Record: rec}
}

var subAccountColumns = table[SubAccount]{
	plain("勘定科目コード", "accountCode", func(s *SubAccount) *string { return &s.AccountCode }).must(),
	text("勘定科目名", "accountName", func(s *SubAccount) **string { return &s.AccountName }),
	plain("補助科目コード", "pcaSubCode", func(s *SubAccount) *string { return &s.PcaSubCode }).must(),
	plain("補助科目名", "name", func(s *SubAccount) *string { return &s.Name }).must(),
	text("ｶﾅ索引", "kanaIndex", func(s *SubAccount) **string { return &s.KanaIndex }),
	text("補助科目正式名", "fullName", func(s *SubAccount) **string { return &s.FullName }),
	text("正式名ﾌﾘｶﾞﾅ", "fullNameKana", func(s *SubAccount) **string { return &s.FullNameKana }),
	textOr("借方税区分コード", "debitTaxCode", "0", func(s *SubAccount) **string { return &s.DebitTaxCode }),
	text("借方税区分名", "debitTaxName", func(s *SubAccount) **string { return &s.DebitTaxName }),
	textOr("貸方税区分コード", "creditTaxCode", "0", func(s *SubAccount) **string { return &s.CreditTaxCode }),
	text("貸方税区分名", "creditTaxName", func(s *SubAccount) **string { return &s.CreditTaxName }),
	integer("消費税自動計算", "autoTaxCalc", 9, oneOf(0, 9), func(s *SubAccount) **int { return &s.AutoTaxCalc }),
	integer("消費税端数処理", "taxRounding", 9, oneOf(0, 9), func(s *SubAccount) **int { return &s.TaxRounding }),
	text("郵便番号", "postalCode", func(s *SubAccount) **string { return &s.PostalCode }),
	text("住所１", "address1", func(s *SubAccount) **string { return &s.Address1 }),
	text("住所２", "address2", func(s *SubAccount) **string { return &s.Address2 }),
	text("TEL", "tel", func(s *SubAccount) **string { return &s.Tel }),
	text("FAX", "fax", func(s *SubAccount) **string { return &s.Fax }),
	text("振込先", "bankInfo", func(s *SubAccount) **string { return &s.BankInfo }),
	integer("締日", "closingDay", 0, anyInt, func(s *SubAccount) **int { return &s.ClosingDay }),
	integer("支払日", "paymentDay", 0, anyInt, func(s *SubAccount) **int { return &s.PaymentDay }),
	text("法人番号", "corporateNumber", func(s *SubAccount) **string { return &s.CorporateNumber }),
	integer("事業者区分", "businessType", 3, anyInt, func(s *SubAccount) **int { return &s.BusinessType }),
	text("適格請求書発行事業者登録番号", "invoiceRegistrationNumber", func(s *SubAccount) **string { return &s.InvoiceRegistrationNumber }),
	integer("デジタルインボイス受信", "digitalInvoiceReceive", 0, oneOf(0, 1), func(s *SubAccount) **int { return &s.DigitalInvoiceReceive }),
}

func mapSubAccount(row Row) Outcome {
	accountCode, _ := row.Lookup("勘定科目コード", "accountCode")
	subCode, _ := row.Lookup("補助科目コード", "pcaSubCode")
	if accountCode == "" || subCode == "" {
		return Outcome{}
	}
	if isEcho(accountCode, "勘定科目コード", "accountCode") || isEcho(subCode, "補助科目コード", "pcaSubCode") {
		return Outcome{}
	}

	rec := SubAccount{IsActive: true}
	if missing := subAccountColumns.fill(&rec, row); len(missing) > 0 {
		return skippedf(accountCode, "必須項目が未入力です（%s）", strings.Join(missing, "、"))
	}
	return Outcome{Result: Imported, Key: rec.Key(), Group: rec.AccountCode, Record: rec}
}

var departmentColumns = table[Department]{
	text("部門名", "name", func(d *Department) **string { return &d.Name }),
	text("ｶﾅ索引", "kanaIndex", func(d *Department) **string { return &d.KanaIndex }),
	optInteger("簡易課税業種", "businessType", between(1, 6), func(d *Department) **int { return &d.BusinessType }),
	text("親部門コード", "parentCode", func(d *Department) **string { return &d.ParentCode }),
	date("開始日", "effectiveFrom", func(d *Department) *time.Time { return &d.EffectiveFrom }),
	optDate("終了日", "effectiveTo", func(d *Department) **time.Time { return &d.EffectiveTo }),
}

func mapDepartment(row Row, now time.Time) Outcome {
	code, _ := row.Lookup("部門コード", "pcaDeptCode")
	if code == "" || isEcho(code, "部門コード", "pcaDeptCode") {
		return Outcome{}
	}

	rec := Department{PcaDeptCode: code, IsActive: true, EffectiveFrom: now}
	departmentColumns.fill(&rec, row)
	if IsCommonDepartment(code) {
		if rec.Name == nil || *rec.Name == "" {
			name := CommonDepartmentName
			rec.Name = &name
		}
		if rec.KanaIndex == nil || *rec.KanaIndex == "" {
			kana := CommonDepartmentKana
			rec.KanaIndex = &kana
		}
	}
	return Outcome{Result: Imported, Key: code, Record: rec}
}

var rateTaxColumns = table[Tax]{
	text("税区分名", "name", func(t *Tax) **string { return &t.Name }),
	{primary: "税率", alias: "rate", apply: func(t *Tax, value string) {
		r := ParseRate(value)
		t.Rate = &r
	}},
	{primary: "端数処理", alias: "rounding", apply: func(t *Tax, value string) {
		r := ParseRounding(value)
		t.Rounding = &r
	}},
}

var codeTaxColumns = table[Tax]{
	text("略称", "shortName", func(t *Tax) **string { return &t.ShortName }).must(),
	text("説明", "description", func(t *Tax) **string { return &t.Description }).must(),
	text("税区分名", "name", func(t *Tax) **string { return &t.Name }),
}

func mapTax(row Row, shape TaxShape, now time.Time) Outcome {
	code, _ := row.Lookup("税区分コード", "pcaTaxCode")
	if code == "" {
		code, _ = row.Lookup("コード", "taxCode")
	}
	if code == "" || isEcho(code, "税区分コード", "pcaTaxCode", "コード", "taxCode") {
		return Outcome{}
	}

	rec := Tax{PcaTaxCode: code, IsActive: true, EffectiveFrom: now}
	if shape == TaxShapeCode {
		if missing := codeTaxColumns.fill(&rec, row); len(missing) > 0 {
			return skippedf("", "税区分 %s の必須項目が未入力です（%s）", code, strings.Join(missing, "、"))
		}
		return Outcome{Result: Imported, Key: code, Record: rec}
	}

	rateTaxColumns.fill(&rec, row)
	if rec.Name == nil || *rec.Name == "" {
		if alt, present := row.Lookup("名称", ""); present {
			rec.Name = &alt
		}
	}
	// Method follows the name, so it is written only when a name column is.
	if rec.Name != nil {
		method := MethodForName(*rec.Name)
		rec.Method = &method
	}
	return Outcome{Result: Imported, Key: code, Record: rec}
}
