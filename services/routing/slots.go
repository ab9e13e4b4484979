// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Slot Filling
// =============================================================================
//
// The classifier selects the intent; argument values are always re-derived
// from the utterance text. Each extractor is a pure function keyed by tool
// name. An extractor returns only the slots it could derive; FillSlots
// overlays them on the classifier's arguments.

// SlotExtractor derives argument values for one tool from an utterance.
//
// It returns nil when nothing could be extracted.
type SlotExtractor func(utterance string) map[string]any

// slotExtractors is the tagged dispatch table. Tools without an entry keep
// the classifier's (normalized) arguments.
var slotExtractors = map[string]SlotExtractor{
	"play_music":      ExtractPlayMusic,
	"set_alarm":       ExtractSetAlarm,
	"set_timer":       ExtractSetTimer,
	"create_reminder": ExtractCreateReminder,
	"send_message":    ExtractSendMessage,
	"search_contacts": ExtractSearchContacts,
	"get_weather":     ExtractGetWeather,
	"open_app":        ExtractOpenApp,
	"type_text":       ExtractTypeText,
	"click_element":   ExtractClickElement,
}

// SlotExtractorFor returns the extractor registered for a tool.
func SlotExtractorFor(tool string) (SlotExtractor, bool) {
	fn, ok := slotExtractors[tool]
	return fn, ok
}

// FillSlots returns a copy of call whose arguments are overridden by values
// extracted from the utterance.
//
// Thread Safety: Pure function. Safe for concurrent use.
func FillSlots(call FunctionCall, utterance string) FunctionCall {
	out := call.Clone()
	fn, ok := slotExtractors[call.Name]
	if !ok {
		return out
	}
	for k, v := range fn(utterance) {
		out.Arguments[k] = v
	}
	return out
}

// slotText prepares an utterance for extraction: the trimmed text without
// trailing '?', '.', '!' and its lower-cased form for matching.
func slotText(utterance string) (q, ql string) {
	q = strings.TrimRight(strings.TrimSpace(utterance), "?.!")
	return q, strings.ToLower(q)
}

// restoreCase maps a span found in the lower-cased utterance back to the
// original casing. Returns span unchanged when the mapping is not
// byte-aligned.
func restoreCase(q, ql, span string) string {
	if len(q) != len(ql) {
		return span
	}
	idx := strings.Index(ql, span)
	if idx < 0 {
		return span
	}
	return q[idx : idx+len(span)]
}

var (
	playPattern  = regexp.MustCompile(`play\s+(?:some\s+|the\s+song\s+)?(.+?)\s*$`)
	alarmPattern = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?`)
	timerPattern = regexp.MustCompile(`(\d+)\s*(?:min(?:ute)?s?)`)

	reminderPattern = regexp.MustCompile(
		`(?:remind\s+(?:me\s+)?(?:about|to)\s+(.+?)\s+at\s+` +
			`|reminder\s+(?:for|about|to)\s+(.+?)\s+at\s+)` +
			`(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)`)
	reminderTimePattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(AM|PM)`)

	messageToPattern = regexp.MustCompile(
		`(?:send\s+(?:a\s+)?message\s+to|text|message)\s+(\w+)\s+(?:saying|that)\s+(.+)`)
	messageRecipientFirstPattern = regexp.MustCompile(
		`(?:send|text)\s+(\w+)\s+(?:a\s+)?message\s+(?:saying|that)\s+(.+)`)

	contactsPattern = regexp.MustCompile(`(?:find|look\s+up|search\s+for|search)\s+(\w+)`)
	weatherPattern  = regexp.MustCompile(
		`weather\s+(?:like\s+)?(?:in|for)\s+(.+?)(?:\s+right\s+now|\s+today|\s+tomorrow)?$`)

	openAppPattern      = regexp.MustCompile(`(?:open|launch|switch\s+to)\s+(?:the\s+)?(.+?)(?:\s+app(?:lication)?)?$`)
	typeTextPattern     = regexp.MustCompile(`(?:type|write)\s+(?:out\s+)?(.+)$`)
	clickElementPattern = regexp.MustCompile(`click\s+(?:on\s+)?(?:the\s+)?(.+?)(?:\s+button|\s+link)?$`)
)

// contactStopWords are never accepted as a contact query.
var contactStopWords = map[string]bool{
	"my": true, "the": true, "a": true, "in": true, "for": true,
	"contacts": true, "contact": true,
}

// ExtractPlayMusic captures the text after "play" as song.
func ExtractPlayMusic(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := playPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	song := cleanText(m[1])
	return map[string]any{"song": restoreCase(q, ql, song)}
}

// ExtractSetAlarm captures hour, optional minute and am/pm and converts to
// 24-hour time. Nothing is returned unless both values are in range.
func ExtractSetAlarm(utterance string) map[string]any {
	_, ql := slotText(utterance)
	m := alarmPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ReplaceAll(m[3], ".", "") {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil
	}
	return map[string]any{"hour": hour, "minute": minute}
}

// ExtractSetTimer captures an integer followed by min/minute(s).
func ExtractSetTimer(utterance string) map[string]any {
	_, ql := slotText(utterance)
	m := timerPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	if n < 0 {
		n = -n
	}
	return map[string]any{"minutes": n}
}

// ExtractCreateReminder captures "remind me to <title> at <time>" and the
// "reminder for|about|to" variant. Time is rendered as "H:MM AM/PM" when an
// am/pm marker is present.
func ExtractCreateReminder(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := reminderPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	title := m[1]
	if title == "" {
		title = m[2]
	}
	title = strings.TrimPrefix(strings.TrimSpace(title), "the ")
	title = restoreCase(q, ql, title)

	timeRaw := strings.ToUpper(strings.TrimSpace(m[3]))
	if tm := reminderTimePattern.FindStringSubmatch(timeRaw); tm != nil {
		mins := tm[2]
		if mins == "" {
			mins = "00"
		}
		timeRaw = tm[1] + ":" + mins + " " + tm[3]
	}
	return map[string]any{"title": title, "time": timeRaw}
}

// ExtractSendMessage captures recipient and message in either word order.
func ExtractSendMessage(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := messageToPattern.FindStringSubmatch(ql)
	if m == nil {
		m = messageRecipientFirstPattern.FindStringSubmatch(ql)
	}
	if m == nil {
		return nil
	}
	recipient := restoreCase(q, ql, strings.TrimSpace(m[1]))
	return map[string]any{
		"recipient": recipient,
		"message":   restoreCase(q, ql, cleanText(m[2])),
	}
}

// ExtractSearchContacts captures the word after find/look up/search (for),
// ignoring stop-words.
func ExtractSearchContacts(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := contactsPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	name := strings.TrimSpace(m[1])
	if contactStopWords[name] {
		return nil
	}
	return map[string]any{"query": restoreCase(q, ql, name)}
}

// ExtractGetWeather captures the location after "weather in|for", without
// trailing temporal qualifiers.
func ExtractGetWeather(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := weatherPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	loc := cleanText(m[1])
	return map[string]any{"location": restoreCase(q, ql, loc)}
}

// titleCaser title-cases lower-case application names ("safari" -> "Safari").
var titleCaser = cases.Title(language.English)

// ExtractOpenApp captures the application name after open/launch/switch to.
func ExtractOpenApp(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := openAppPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	name := restoreCase(q, ql, cleanText(m[1]))
	if name == strings.ToLower(name) {
		name = titleCaser.String(name)
	}
	return map[string]any{"name": name}
}

// ExtractTypeText captures the text after type/write, preserving case.
func ExtractTypeText(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := typeTextPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	return map[string]any{"text": restoreCase(q, ql, strings.TrimSpace(m[1]))}
}

// ExtractClickElement captures the element label after click (on) (the).
func ExtractClickElement(utterance string) map[string]any {
	q, ql := slotText(utterance)
	m := clickElementPattern.FindStringSubmatch(ql)
	if m == nil {
		return nil
	}
	return map[string]any{"label": restoreCase(q, ql, cleanText(m[1]))}
}
