package bot

// Reply keyboard buttons. The text is what Telegram sends back when pressed.
const (
	BtnArrived    = "I'm Arrived"
	BtnSetStart   = "Set Start Time"
	BtnSetLeisure = "Set Leisure Time"
	BtnWorkEnd    = "Work End"
	BtnOvertime   = "Notify Liquidated Overtime"
)

// Keyboard returns the reply keyboard for a chat. Before today's start is
// known the first button records arrival; afterwards it reports the end of
// the shift and a second row offers the overtime reminder.
func Keyboard(hasStart bool) [][]string {
	row := []string{BtnSetStart, BtnSetLeisure}
	if !hasStart {
		return [][]string{append([]string{BtnArrived}, row...)}
	}
	return [][]string{
		append([]string{BtnWorkEnd}, row...),
		{BtnOvertime},
	}
}
