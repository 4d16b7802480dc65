package project

import "strings"

// EmotionAuto lets the synthesis provider pick the delivery.
const EmotionAuto = "auto"

// SupportedEmotions lists the emotion labels the synthesis provider accepts.
var SupportedEmotions = []string{"happy", "sad", "angry", "fearful", "disgusted", "surprised", "calm"}

var supportedEmotionSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SupportedEmotions))
	for _, emotion := range SupportedEmotions {
		set[emotion] = struct{}{}
	}
	return set
}()

// NormalizeEmotion maps arbitrary input to a supported emotion label,
// falling back to auto.
func NormalizeEmotion(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if _, ok := supportedEmotionSet[value]; ok {
		return value
	}
	return EmotionAuto
}

var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{"happy", []string{"高兴", "开心", "快乐", "兴奋", "愉快", "笑", "哈哈", "嘿嘿", "欢喜", "喜悦"}},
	{"sad", []string{"难过", "悲伤", "哭", "眼泪", "伤心", "痛苦", "失望", "沮丧", "忧伤", "哀伤"}},
	{"angry", []string{"生气", "愤怒", "气愤", "恼火", "暴怒", "发火", "愤恨", "恼怒", "怒气", "火大"}},
	{"fearful", []string{"害怕", "恐惧", "担心", "紧张", "焦虑", "忧虑", "不安", "惊慌", "恐慌", "畏惧"}},
	{"disgusted", []string{"恶心", "厌恶", "讨厌", "反感", "嫌弃", "厌烦", "憎恶", "排斥", "反胃"}},
	{"surprised", []string{"惊讶", "震惊", "意外", "吃惊", "惊奇", "惊愕", "惊诧", "诧异", "出乎意料", "想不到"}},
	{"calm", []string{"平静", "冷静", "淡定", "沉着", "安静", "宁静", "祥和", "安宁", "镇静", "平和"}},
}

// DetectEmotion scores emotion keywords in the text and returns the best
// match, or auto when nothing matches. Ties go to the earlier emotion in
// the supported list so results stay deterministic.
func DetectEmotion(text string) string {
	if strings.TrimSpace(text) == "" {
		return EmotionAuto
	}
	text = strings.ToLower(text)

	best := EmotionAuto
	bestScore := 0
	for _, group := range emotionKeywords {
		score := 0
		for _, keyword := range group.keywords {
			score += strings.Count(text, keyword)
		}
		if score > bestScore {
			best = group.emotion
			bestScore = score
		}
	}
	return best
}
