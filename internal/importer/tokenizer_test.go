package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func TestSplitLineQuotedFields(t *testing.T) {
	fields := splitLine(`101,"Tokyo, Japan","She said ""hi""", plain `, ',')
	assert.Equal(t, []string{"101", "Tokyo, Japan", `She said "hi"`, "plain"}, fields)
}

func TestSplitLineTogglesMidField(t *testing.T) {
	assert.Equal(t, []string{"ab,c", "d"}, splitLine(`a"b,"c,d`, ','))
	assert.Equal(t, []string{"", ""}, splitLine(`,`, ','))
}

func TestTokenizeSkipsBannerAndBlankLines(t *testing.T) {
	text := "PCA会計 text version 1.00\r\n" +
		"勘定科目コード,勘定科目名\r\n" +
		"\r\n" +
		"101,現金\r\n" +
		"   \n" +
		"102,\"小口現金\"\n"

	table := Tokenize(text)
	assert.Equal(t, []string{"勘定科目コード", "勘定科目名"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "現金", table.Rows[0]["勘定科目名"])
	assert.Equal(t, "小口現金", table.Rows[1]["勘定科目名"])
	assert.Equal(t, []int{4, 6}, table.Lines, "rows keep their file line numbers")
}

func TestTokenizeDropsMismatchedRows(t *testing.T) {
	text := "a,b,c,d,e\n1,2,3,4,5\n1,2,3\n"
	table := Tokenize(text)
	assert.Len(t, table.Rows, 1)
	assert.Equal(t, 1, table.Dropped)
}

func TestTokenizeLaterDuplicateHeaderWins(t *testing.T) {
	table := Tokenize("code,name,name\n1,first,second\n")
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "second", table.Rows[0]["name"])
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize("\r\n\r\n").Header)
	assert.Empty(t, Tokenize("text version 2\n").Header)
}

func TestDecodeDetectsEncodings(t *testing.T) {
	const text = "勘定科目コード,勘定科目名\n101,現金\n"

	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)
	decoded, enc := Decode(sjis)
	assert.Equal(t, EncodingShiftJIS, enc)
	assert.Equal(t, text, decoded)

	euc, err := japanese.EUCJP.NewEncoder().Bytes([]byte("京都"))
	require.NoError(t, err)
	decoded, enc = Decode(euc)
	assert.Equal(t, EncodingEUCJP, enc)
	assert.Equal(t, "京都", decoded)

	decoded, enc = Decode(append([]byte{0xEF, 0xBB, 0xBF}, text...))
	assert.Equal(t, EncodingUTF8, enc)
	assert.Equal(t, text, decoded)
}

func TestDecodeFallsBackWithoutError(t *testing.T) {
	decoded, enc := Decode([]byte{0x41, 0xFF, 0xFE, 0x42})
	assert.Equal(t, EncodingUTF8, enc)
	assert.Contains(t, decoded, "A")
	assert.Contains(t, decoded, "B")
}
