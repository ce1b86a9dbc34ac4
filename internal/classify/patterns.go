package classify

import "github.com/orderscout/orderscout/internal/types"

// TriggerPattern is one entry of the pattern bank: a category-labelled
// regular expression with the confidence assigned to a match. More
// specific patterns carry higher confidence (0.85-0.95); looser catch-all
// patterns sit at the 0.80-0.88 range so ambiguous text still reaches the
// remote classifier.
type TriggerPattern struct {
	Name       string
	Expr       string
	Confidence float64
	Label      string
}

// Every expression is compiled case-insensitive, multiline, Unicode-aware.
// RE2 has no lookaround, so the bank sticks to alternation and
// non-capturing groups.

var backendPatterns = []TriggerPattern{
	{
		Name:       "python_dev",
		Expr:       `(?:ищу|ищем|нужен|требуется|в\s+поиск[еи]|в\s+поисках|на\s+проект\s+требуется|на\s+проект\s+компании\s+требуется)\s+(?:опытн\w*\s+)?(?:junior\s+)?(?:python|питон)[.-]?\s*(?:разработчик|программист|специалист|developer|engineer|спец)|(?:junior\s+)?(?:python|питон)[.-]?\s*(?:разработчик|программист)`,
		Confidence: 0.95,
		Label:      "Python developer (explicit)",
	},
	{
		Name:       "junior_programmer",
		Expr:       `(?:junior\s+программист|junior\s+разработчик)`,
		Confidence: 0.88,
		Label:      "Junior programmer / developer",
	},
	{
		Name:       "backend_dev",
		Expr:       `(?:разработка\s+бэкенда|разработчик\s+на\s+бэк|специалист\s+на\s+python|бэкенд\s+разработчик|backend[-\s]?разработчик|backend[-\s]?developer)`,
		Confidence: 0.92,
		Label:      "Backend development",
	},
	{
		Name:       "junior_backend",
		Expr:       `(?:junior\s+backend[-\s]?разработчик|junior\s+backend[-\s]?developer|junior\s+бэкенд[-\s]?разработчик)`,
		Confidence: 0.90,
		Label:      "Junior backend developer",
	},
	{
		Name:       "fullstack_dev",
		Expr:       `(?:в\s+поисках|ищем|нужен|требуется)\s+full[-\s]?stack\s+разработчик`,
		Confidence: 0.94,
		Label:      "Full-stack developer",
	},
	{
		Name:       "nodejs_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется)\s+(?:node\.?js|javascript|js)[.-]?\s*(?:разработчик|программист|engineer)`,
		Confidence: 0.94,
		Label:      "Node.js / JavaScript developer",
	},
	{
		Name:       "java_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется)\s+java\s*(?:разработчик|программист|developer|engineer)`,
		Confidence: 0.93,
		Label:      "Java developer",
	},
	{
		Name:       "go_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется)\s+(?:go|golang)[.-]?\s*(?:разработчик|программист|developer)`,
		Confidence: 0.92,
		Label:      "Go developer",
	},
	{
		Name:       "api_backend",
		Expr:       `(?:разработка|разработать|создание|интеграция|помощь\s+с\s+разработкой)\s+(?:.*?\s+)?(?:api|rest|graphql|микросервис|backend|бэкенд)`,
		Confidence: 0.92,
		Label:      "API / backend development",
	},
	{
		Name:       "chatbot_dev",
		Expr:       `(?:чат[-\s]?бот|chatbot|chat\s*bot|телеграм[-\s]?бот|telegram\s*bot|бот[-\s]?для|разработка\s+бота|создание\s+бота)`,
		Confidence: 0.92,
		Label:      "Chat bot development",
	},
	{
		Name:       "messenger_integration",
		Expr:       `(?:интеграция\s+с\s+мессенджерами|интеграция\s+api)`,
		Confidence: 0.91,
		Label:      "Messenger / API integration",
	},
	{
		Name:       "getcourse_integration",
		Expr:       `(?:getcourse|get\s*course|геткурс)`,
		Confidence: 0.91,
		Label:      "GetCourse integration",
	},
	{
		Name:       "webhook_setup",
		Expr:       `(?:настройка\s+вебхуков|вебхук|webhook)`,
		Confidence: 0.90,
		Label:      "Webhook setup",
	},
	{
		Name:       "crm_automation",
		Expr:       `(?:автоматизация\s+crm[-\s]?системы|автоматизация\s+crm)`,
		Confidence: 0.89,
		Label:      "CRM automation",
	},
	{
		Name:       "prototype_creation",
		Expr:       `(?:создание\s+прототипа\s+продукта|нужен\s+mvp|создание\s+mvp)`,
		Confidence: 0.88,
		Label:      "Prototype / MVP",
	},
	{
		Name:       "email_automation",
		Expr:       `(?:автоматизация\s+email\s+рассылок|email\s+рассылки)`,
		Confidence: 0.88,
		Label:      "Email campaign automation",
	},
	{
		Name:       "technical_specialist",
		Expr:       `(?:технический\s+специалист|техспец|тех\s+специалист|тех\s+спец)`,
		Confidence: 0.85,
		Label:      "Technical specialist (generic)",
	},
	{
		Name:       "database_dev",
		Expr:       `(?:база\s*данных|database|postgresql|mysql|mongodb|redis)`,
		Confidence: 0.85,
		Label:      "Database work",
	},
	{
		Name:       "general_developer",
		Expr:       `(?:ищу\s+разработчика|нужен\s+разработчик|требуется\s+разработчик)`,
		Confidence: 0.80,
		Label:      "Developer (generic request)",
	},
}

var frontendPatterns = []TriggerPattern{
	{
		Name:       "react_dev",
		Expr:       `(?:(?:нужен|ищ[уемся]*|требуется)\s+)?(?:react|reactjs)[.-]?\s*(?:разработчик|программист|developer|engineer|specialist|специалист)`,
		Confidence: 0.95,
		Label:      "React developer",
	},
	{
		Name:       "vue_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется)\s+(?:vue|vuejs|vue\.?js)\s*(?:разработчик|programmer|specialist|специалиста?)`,
		Confidence: 0.94,
		Label:      "Vue.js developer",
	},
	{
		Name:       "angular_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется)\s+angular[.-]?\s*(?:разработчик|developer|specialist)`,
		Confidence: 0.93,
		Label:      "Angular developer",
	},
	{
		Name:       "webflow_dev",
		Expr:       `webflow[-\s/]?(?:разработчик|специалист|спец|tilda|тильда)|(?:ищем|нужен|требуется|в\s+поисках)\s+(?:разработчик|специалист)\s+на\s+(?:webflow|tilda)|(?:разработка|проект)\s+на\s+(?:webflow|tilda)|webflow\s*/\s*tilda\s+спец`,
		Confidence: 0.93,
		Label:      "WebFlow / Tilda developer",
	},
	{
		Name:       "frontend_dev",
		Expr:       `(?:фронтенд|frontend)[.-]?\s*(?:разработчик|programmer|developer|engineer)`,
		Confidence: 0.92,
		Label:      "Frontend developer (generic)",
	},
	{
		Name:       "tilda_dev",
		Expr:       `(?:ищем\s+разработчика\s+на\s+tilda|в\s+поисках\s+tilda[-\s]?разработчика|требуется\s+tilda\s+specialist|нужен\s+дизайнер\s+tilda|tilda[-\s]?разработчик)`,
		Confidence: 0.92,
		Label:      "Tilda developer / designer",
	},
	{
		Name:       "ux_ui_dev",
		Expr:       `(?:ux/ui\s+разработчик|ux/ui\s+специалист|нужен\s+ux/ui|ux\s+ui\s+разработчик)`,
		Confidence: 0.92,
		Label:      "UX/UI developer",
	},
	{
		Name:       "figma_designer",
		Expr:       `(?:специалист\s+figma|дизайнер\s+на\s+figma|ищем\s+специалиста\s+на\s+figma|figma\s+дизайнер)`,
		Confidence: 0.91,
		Label:      "Figma designer",
	},
	{
		Name:       "ui_ux_design",
		Expr:       `(?:ui|ux|ui/ux|дизайн)\s*/?\s*(?:дизайнер|designer|специалист).*?(?:figma|ui|ux)`,
		Confidence: 0.91,
		Label:      "UX/UI designer",
	},
	{
		Name:       "website_dev",
		Expr:       `(?:разработчик\s+сайтов|нужен\s+специалист\s+для\s+создания\s+сайта|ищу\s+спеца\s+по\s+сайтам)`,
		Confidence: 0.90,
		Label:      "Website developer",
	},
}

var mobilePatterns = []TriggerPattern{
	{
		Name:       "flutter_dev",
		Expr:       `(?:нужен|ищ[уемся]*|требуется|разработчик\s+для\s+создания).*?flutter.*?(?:разработчик|developer|programmer|specialist|приложения|app)`,
		Confidence: 0.95,
		Label:      "Flutter developer",
	},
	{
		Name:       "react_native_dev",
		Expr:       `(?:react\s*native|rn\s+dev).*?(?:разработчик|developer|специалиста?)`,
		Confidence: 0.94,
		Label:      "React Native developer",
	},
	{
		Name:       "flutterflow_dev",
		Expr:       `(?:flutter\s*/?\s*flutterflow\s+разработка|flutterflow)`,
		Confidence: 0.94,
		Label:      "Flutter / FlutterFlow development",
	},
	{
		Name:       "ios_dev",
		Expr:       `(?:ios|swift|apple).*?(?:разработчик|developer|programmer)`,
		Confidence: 0.93,
		Label:      "iOS developer",
	},
	{
		Name:       "android_dev",
		Expr:       `(?:android|kotlin).*?(?:разработчик|developer|programmer)`,
		Confidence: 0.93,
		Label:      "Android developer",
	},
	{
		Name:       "mobile_app",
		Expr:       `(?:разработчик\s+для\s+создания|нужен|ищ[уемся]*|требуется|нужно\s+создать).*?(?:мобильного\s+приложения|mobile\s+app|мобильное\s+приложение|мобилк[аи])`,
		Confidence: 0.90,
		Label:      "Mobile app (generic)",
	},
	{
		Name:       "mobile_specialist",
		Expr:       `(?:ищу\s+спец[ау]\s+по\s+мобилк[еи]|спец\s+по\s+мобилк[еи])`,
		Confidence: 0.88,
		Label:      "Mobile specialist",
	},
}

var aimlPatterns = []TriggerPattern{
	{
		Name:       "ai_engineer",
		Expr:       `(?:ищу|ищем|нужен|требуется|на\s+проект\s+требуется|порекомендуйте|в\s+поиск[еи]|в\s+поисках)\s+(?:ai|ии|искусственный\s+интеллект)[-\s]?(?:инженер|engineer|специалист|specialist)|консультант\s+по\s+ai|консультант\s+по\s+ии`,
		Confidence: 0.93,
		Label:      "AI engineer / consultant",
	},
	{
		Name:       "prompt_engineer",
		Expr:       `(?:требуется|ищем|нужен|ищу|в\s+поиск[еи]|в\s+поисках)\s+(?:prompt\s+engineer|промпт[-\s]?инженер|промптовик|специалиста?\s+по\s+промпт\w*|ai\s+prompt|промпт[-\s]?специалист)`,
		Confidence: 0.92,
		Label:      "Prompt engineer",
	},
	{
		Name:       "ai_assistant_creation",
		Expr:       `(?:создать|создание)\s+(?:ai[-\s]?ассистента|ai[-\s]?агента|ии[-\s]?ассистента|ии[-\s]?агента|ии[-\s]?помощника|ai[-\s]?помощника)`,
		Confidence: 0.91,
		Label:      "AI assistant creation",
	},
	{
		Name:       "chatgpt_integration",
		Expr:       `(?:нужна\s+помощь\s+с|помощь\s+с|интеграция|integration|подключение|create|создание|в\s+наш).*?(?:chatgpt|gpt-?4|openai|chat\s*bot)`,
		Confidence: 0.90,
		Label:      "ChatGPT / OpenAI integration",
	},
	{
		Name:       "automation_business",
		Expr:       `(?:нужна\s+автоматизация|ищем\s+автоматизатора|нужно\s+автоматизировать|специалист\s+по\s+автоматизации|автоматизация\s+(?:бизнес[-\s]?процессов|бизнеса|продаж|обработки\s+заявок|поддержки\s+клиентов|email\s+рассылок|crm[-\s]?системы|маркетинговых\s+кампаний|отчетов))`,
		Confidence: 0.90,
		Label:      "Business process automation",
	},
	{
		Name:       "ai_chatbot",
		Expr:       `(?:нужен\s+чат[-\s]?бот\s+с\s+ии|нужен\s+telegram[-\s]?бот\s+с\s+ии|чат[-\s]?бот\s+с\s+ai|ai[-\s]?бот|ии[-\s]?бот|телеграм\s+бот|бот\s+для\s+маркетплейса)`,
		Confidence: 0.90,
		Label:      "AI chat bots",
	},
	{
		Name:       "chatbot_ai",
		Expr:       `(?:чат[-\s]?бот|chatbot|chat\s*bot).*?(?:на\s+базе|с\s+использованием|с\s+помощью|на|для).*?(?:ai|ии|chatgpt|gpt|нейросеть)`,
		Confidence: 0.89,
		Label:      "AI-backed chat bots",
	},
	{
		Name:       "neural_network",
		Expr:       `(?:специалист\s+по\s+нейросетям|ищу\s+специалиста\s+по\s+нейросетям|обучить\s+нейросеть|обучить\s+(?:chatgpt|gpt|ии|ai)|нейросеть|neural\s+network|machine\s+learning)`,
		Confidence: 0.89,
		Label:      "Neural networks / model training",
	},
	{
		Name:       "openai_integration",
		Expr:       `(?:openai|подключить\s+gpt|интеграция\s+с\s+ии|интеграция\s+с\s+ai)`,
		Confidence: 0.89,
		Label:      "OpenAI integration",
	},
	{
		Name:       "prompt_services",
		Expr:       `(?:промпт\s+для|написать\s+промпт|оптимизация\s+промптов)`,
		Confidence: 0.88,
		Label:      "Prompt services",
	},
	{
		Name:       "ai_generation",
		Expr:       `(?:генерация\s+(?:видео|изображения|изображений)|ai[-\s]?услуги|ии[-\s]?сервис)`,
		Confidence: 0.87,
		Label:      "AI content generation",
	},
}

var lowCodePatterns = []TriggerPattern{
	{
		Name:       "bubble_dev",
		Expr:       `(?:нужен\s+специалист\s+(?:по\s+)?bubble|разработка\s+на\s+bubble|проект\s+на\s+bubble|ищу\s+разработчика\s+на\s+bubble|bubble\.io|bubble)`,
		Confidence: 0.94,
		Label:      "Bubble.io developer",
	},
	{
		Name:       "zapier_automation",
		Expr:       `(?:проект\s+на\s+zapier|разработка\s+на\s+zapier|настройка\s+zapier\s+интеграции|zapier)`,
		Confidence: 0.92,
		Label:      "Zapier automation",
	},
	{
		Name:       "make_automation",
		Expr:       `(?:проект\s+на\s+make|разработка\s+на\s+make)`,
		Confidence: 0.91,
		Label:      "Make automation",
	},
	{
		Name:       "n8n_automation",
		Expr:       `(?:проект\s+на\s+n8n|разработка\s+на\s+n8n|ищу\s+разработчика\s+на\s+n8n|нужен\s+специалист\s+n8n|n8n)`,
		Confidence: 0.91,
		Label:      "n8n automation",
	},
	{
		Name:       "airtable_glide",
		Expr:       `(?:проект\s+на\s+(?:airtable|glide|adalo)|разработка\s+на\s+(?:airtable|glide|adalo)|airtable|glide|adalo)`,
		Confidence: 0.91,
		Label:      "Airtable / Glide / Adalo development",
	},
	{
		Name:       "google_sheets_automation",
		Expr:       `(?:автоматизация\s+отчетов\s+в\s+google\s+sheets|google\s+sheets\s+автоматизация)`,
		Confidence: 0.88,
		Label:      "Google Sheets automation",
	},
}

var otherPatterns = []TriggerPattern{
	{
		Name:       "shopify_dev",
		Expr:       `(?:нужен\s+специалист\s+shopify|ищу\s+разработчика\s+на\s+shopify|проект\s+на\s+shopify|разработка\s+на\s+shopify|shopify)`,
		Confidence: 0.93,
		Label:      "Shopify developer",
	},
	{
		Name:       "1c_dev",
		Expr:       `(?:разработчик\s+1[сc]|программист\s+1[сc]|1[сc]\s+разработчик|разработчика\s+на\s+1[сc]|на\s+1[сc])`,
		Confidence: 0.93,
		Label:      "1C developer",
	},
	{
		Name:       "marketplace_dev",
		Expr:       `(?:маркетплейс|marketplace|яндекс\s*маркет|ozon|wildberries).*?(?:интеграция|разработка|api)`,
		Confidence: 0.90,
		Label:      "Marketplace development",
	},
}

// PatternBank returns the full category-keyed bank. Immutable after
// startup; callers must not mutate the returned slices.
func PatternBank() map[types.Category][]TriggerPattern {
	return map[types.Category][]TriggerPattern{
		types.CategoryBackend:  backendPatterns,
		types.CategoryFrontend: frontendPatterns,
		types.CategoryMobile:   mobilePatterns,
		types.CategoryAIML:     aimlPatterns,
		types.CategoryLowCode:  lowCodePatterns,
		types.CategoryOther:    otherPatterns,
	}
}

// ExclusionPatterns veto detection outright: commerce, off-topic services,
// spam, and joke content. Word starts are anchored to whitespace or
// punctuation so a veto word embedded inside a longer word does not
// suppress a legitimate order.
var ExclusionPatterns = []string{
	`(?:^|[\s,.!?])(?:продам|продаю|куплю)(?:$|[\s,.!?])`,
	`(?:услуга\s+по\s+уборке|заказ\s+еды|доставка\s+еды)`,
	`(?:^|[\s,.!?])(?:spam|спам|реклама)(?:$|[\s,.!?])`,
	`(?:смешная\s+картинка|(?:^|[\s,.!?])мем(?:$|[\s,.!?])|баян|давай\s+поговорим\s+о\s+жизни)`,
}
