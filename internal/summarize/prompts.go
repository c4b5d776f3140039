package summarize

// Style selects a prompt template.
type Style string

const (
	StyleMeetingNotes     Style = "meeting_notes"
	StyleBulletPoints     Style = "bullet_points"
	StyleExecutiveSummary Style = "executive_summary"
)

const textMarker = "{text}"

var prompts = map[Style]string{
	StyleMeetingNotes: `Du er en ekspert på å lage strukturerte møtereferater.
Analyser følgende transkripsjon av et møte og lag et profesjonelt møtereferat på norsk.

Strukturer referatet slik:
1. **Hovedtemaer diskutert**
2. **Viktige beslutninger**
3. **Handlingspunkter** (hvem gjør hva, med frister hvis nevnt)
4. **Oppfølgingssaker**

Hold referatet konsist men fullstendig.

TRANSKRIPSJON:
{text}

MØTEREFERAT:`,

	StyleBulletPoints: `Oppsummer følgende tekst som konsise kulepunkter på norsk.
Fokuser på de viktigste poengene og konklusjonene.
Maks 10 kulepunkter.

TEKST:
{text}

OPPSUMMERING:`,

	StyleExecutiveSummary: `Lag en kort ledersammendrag (executive summary) på norsk av følgende tekst.
Sammendraget skal være 2-3 avsnitt og dekke:
- Hovedbudskapet/konklusjonen
- Viktigste funn eller beslutninger
- Anbefalte neste steg

TEKST:
{text}

LEDERSAMMENDRAG:`,
}

// ParseStyle maps a request value to a Style. Unknown or empty values fall
// back to meeting notes.
func ParseStyle(s string) Style {
	st := Style(s)
	if _, ok := prompts[st]; ok {
		return st
	}
	return StyleMeetingNotes
}

// Styles lists the supported styles.
func Styles() []Style {
	return []Style{StyleMeetingNotes, StyleBulletPoints, StyleExecutiveSummary}
}
