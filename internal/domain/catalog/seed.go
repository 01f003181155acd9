package catalog

// DefaultSeed - три курса платформы по три модуля в каждом.
var DefaultSeed = []CourseSeed{
	{
		Title:       "Cybersecurity with AI",
		Description: "Master the fusion of traditional cybersecurity practices with cutting-edge AI to combat evolving digital threats in West Africa. This course equips you with skills to detect AI-powered attacks, build intelligent defense systems, and ensure secure digital ecosystems amid rising cybercrimes in regions like Nigeria and Ghana.",
		Modules: []ModuleSeed{
			{Title: "Intro to AI Threats", Content: "Explore how AI is weaponized in cyber attacks, including deepfakes and automated phishing tailored to West African mobile banking vulnerabilities. Learn to identify risks in real-world scenarios like fintech scams and social engineering."},
			{Title: "Defensive AI Tools", Content: "Hands-on training with machine learning models for anomaly detection and threat prediction. Build AI-driven firewalls and intrusion systems using Python libraries, adapted for low-bandwidth environments common in Senegal and Cameroon."},
			{Title: "Ethical AI in Security", Content: "Delve into AI biases in cybersecurity tools and ethical considerations for deployment in diverse West African contexts. Case studies on protecting critical infrastructure like power grids from AI-enhanced ransomware."},
		},
	},
	{
		Title:       "Data Engineering for AI",
		Description: "Learn to engineer robust data pipelines optimized for AI applications, addressing West Africa's unique challenges like intermittent connectivity and diverse data sources. This course adapts core data skills to power AI models for scalable, efficient solutions in industries from agriculture to healthcare.",
		Modules: []ModuleSeed{
			{Title: "ETL Basics for AI", Content: "Design extract, transform, load processes with AI automation, handling unstructured data from regional sources like mobile transactions in Benin. Use tools like Pandas and Apache Airflow for resilient pipelines."},
			{Title: "Cloud Integration and Scalability", Content: "Integrate cloud platforms like AWS or Azure with AI data needs, focusing on cost-effective scaling for West African startups. Practical projects on building data lakes for AI training amid power outages."},
			{Title: "Data Governance with AI", Content: "Implement AI-assisted data quality checks and compliance with laws like Nigeria's NDPA. Explore real-time processing for AI applications in e-commerce and public sector data management."},
		},
	},
	{
		Title:       "Web App Development with AI",
		Description: "Adapt web development fundamentals to incorporate AI for smarter, interactive applications suited to West African users. From mobile-first designs to AI-enhanced features, this course prepares you to build secure, accessible apps that solve local problems like e-learning platforms and fintech tools.",
		Modules: []ModuleSeed{
			{Title: "React with AI APIs", Content: "Build full-stack web apps using React and integrate AI APIs like those from OpenAI for features such as chatbots. Focus on responsive designs for high smartphone usage in Ghana and Senegal."},
			{Title: "Deployment and Security", Content: "Deploy AI-integrated apps on platforms like Vercel or Heroku, with emphasis on security against regional threats. Hands-on with CI/CD pipelines and performance optimization for low-latency access."},
			{Title: "AI-Enhanced User Experiences", Content: "Create personalized web features using AI, such as recommendation engines for e-commerce. Address accessibility for diverse users, including offline capabilities for rural West Africa."},
		},
	},
}
